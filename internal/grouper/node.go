// Package grouper reconstructs the causal structure of an execution trace:
// it nests events within each line by temporal containment, stitches lines
// and planes together through declared correlation keys, and assigns every
// reachable event to a numbered, named group.
package grouper

import (
	"strconv"
	"strings"

	"github.com/tobert/trace-grouper/internal/timeline"
)

// EventNode wraps one event with its derived correlation state. Nodes are
// shared: a node can sit in several index buckets and in its parent's child
// list at the same time.
type EventNode struct {
	visitor  *timeline.Visitor
	event    *timeline.Event
	parent   *EventNode
	children []*EventNode
	groupID  *int64
}

// NewEventNode wraps an event for the given plane visitor.
func NewEventNode(v *timeline.Visitor, e *timeline.Event) *EventNode {
	return &EventNode{visitor: v, event: e}
}

// Event returns the wrapped event.
func (n *EventNode) Event() *timeline.Event { return n.event }

// Parent returns the node's current parent, or nil.
func (n *EventNode) Parent() *EventNode { return n.parent }

// Children returns the node's children in discovery order.
func (n *EventNode) Children() []*EventNode { return n.children }

// GroupID returns the assigned group id, if any.
func (n *EventNode) GroupID() (int64, bool) {
	if n.groupID == nil {
		return 0, false
	}
	return *n.groupID, true
}

// AddChild appends a child node. The caller is responsible for also setting
// the child's parent reference.
func (n *EventNode) AddChild(child *EventNode) {
	n.children = append(n.children, child)
}

// SetParent points the node at a new parent, replacing any previous one.
// A cross-plane link established later deliberately wins over an
// intra-line containment link.
func (n *EventNode) SetParent(parent *EventNode) {
	n.parent = parent
}

// ContextStat looks up a stat on the node's own event and, failing that,
// walks the ancestor chain. Iterative so that pathologically deep traces
// cannot exhaust the stack.
func (n *EventNode) ContextStat(t timeline.StatType) (timeline.StatValue, bool) {
	for cur := n; cur != nil; cur = cur.parent {
		if s := cur.visitor.FindStatByType(cur.event, t); s != nil {
			return s.Value, true
		}
	}
	return timeline.StatValue{}, false
}

// GroupName derives the display name for a group rooted at this node: the
// context graph-type string, if present, followed by the sum of the context
// step and iteration numbers (each defaulting to zero).
func (n *EventNode) GroupName() string {
	var parts []string
	if v, ok := n.ContextStat(timeline.StatGraphType); ok && v.Kind() == timeline.StatValueString {
		parts = append(parts, v.Str())
	}
	var stepNum int64
	if v, ok := n.ContextStat(timeline.StatStepNum); ok {
		if i, ok := v.AsInt64(); ok {
			stepNum = i
		}
	}
	if v, ok := n.ContextStat(timeline.StatIterNum); ok {
		if i, ok := v.AsInt64(); ok {
			stepNum += i
		}
	}
	parts = append(parts, strconv.FormatInt(stepNum, 10))
	return strings.Join(parts, " ")
}

// PropagateGroupID assigns the id to this node and every descendant, and
// writes it onto each underlying event as a group_id stat. The write is
// best-effort: a plane whose metadata table has no group_id slot is left
// untouched, never an error.
func (n *EventNode) PropagateGroupID(groupID int64) {
	id := groupID
	n.groupID = &id
	if metaID, ok := n.visitor.StatMetadataID(timeline.StatGroupID); ok {
		timeline.AddOrUpdateIntStat(metaID, groupID, n.event)
	}
	for _, child := range n.children {
		child.PropagateGroupID(groupID)
	}
}

// AddStepName attaches the group name to the node's event as a step_name
// stat. Best-effort, like the group id write.
func (n *EventNode) AddStepName(name string) {
	if metaID, ok := n.visitor.StatMetadataID(timeline.StatStepName); ok {
		timeline.AddOrUpdateStrStat(metaID, name, n.event)
	}
}
