package grouper

import (
	"strconv"
	"strings"

	"github.com/tobert/trace-grouper/internal/timeline"
)

// ConnectInfo declares one cross-line correlation rule: events of ChildType
// are linked under the event of ParentType that resolves the same key. Keys
// are resolved through the ancestor chain, in KeyStats order.
type ConnectInfo struct {
	ParentType timeline.EventType
	ChildType  timeline.EventType
	KeyStats   []timeline.StatType
}

// GroupNameMap maps assigned group ids to display names. Ids are dense,
// starting at zero.
type GroupNameMap map[int64]string

// eventNodeIndex buckets nodes by event type in discovery order. Only the
// types named by the connect rules and root types get buckets; buckets are
// pre-seeded so membership checks double as "is anyone interested".
type eventNodeIndex map[timeline.EventType][]*EventNode

func newEventNodeIndex(connectInfo []ConnectInfo, rootTypes []timeline.EventType) eventNodeIndex {
	index := make(eventNodeIndex)
	for _, ci := range connectInfo {
		if _, ok := index[ci.ParentType]; !ok {
			index[ci.ParentType] = nil
		}
		if _, ok := index[ci.ChildType]; !ok {
			index[ci.ChildType] = nil
		}
	}
	for _, t := range rootTypes {
		if _, ok := index[t]; !ok {
			index[t] = nil
		}
	}
	return index
}

// kernelEventType classifies an event by its stats alone: a correlation id
// without a device id marks a kernel execution on a device line, with a
// device id it marks the host-side launch. Reports EventUnknown for
// everything else.
func kernelEventType(v *timeline.Visitor, e *timeline.Event) timeline.EventType {
	var foundCorrelationID, foundDeviceID bool
	for _, s := range e.Stats {
		switch v.StatType(s) {
		case timeline.StatCorrelationID:
			foundCorrelationID = true
		case timeline.StatDeviceID:
			foundDeviceID = true
		}
	}
	if foundCorrelationID {
		if foundDeviceID {
			return timeline.EventKernelLaunch
		}
		return timeline.EventKernelExecute
	}
	return timeline.EventUnknown
}

// connectIntraThread builds the nesting tree of each line independently.
// Each line's events arrive ordered by start time, so a stack of still-open
// ancestors is enough: anything on the stack that does not contain the new
// event can never contain a later one either.
func connectIntraThread(v *timeline.Visitor, plane *timeline.Plane, index eventNodeIndex) {
	_, trackLaunch := index[timeline.EventKernelLaunch]
	_, trackExecute := index[timeline.EventKernelExecute]
	trackKernels := trackLaunch || trackExecute

	for _, line := range plane.Lines {
		var parents []*EventNode
		for _, event := range line.Events {
			cur := NewEventNode(v, event)
			for len(parents) > 0 {
				top := parents[len(parents)-1]
				if event.Nested(top.Event()) {
					top.AddChild(cur)
					cur.SetParent(top)
					break
				}
				parents = parents[:len(parents)-1]
			}
			parents = append(parents, cur)

			eventType := v.EventType(event)
			if bucket, ok := index[eventType]; ok {
				index[eventType] = append(bucket, cur)
			}
			// Kernel launch/execute are recognized by stat shape, not by the
			// event's declared type, so they need a second classification.
			if trackKernels {
				if kt := kernelEventType(v, event); kt != timeline.EventUnknown {
					if bucket, ok := index[kt]; ok {
						index[kt] = append(bucket, cur)
					}
				}
			}
		}
	}
}

// correlationKey is the resolved key tuple in a map-friendly encoding.
type correlationKey string

// resolveCorrelationKey resolves every key stat through the node's ancestor
// chain. All components must be present and integer-valued; otherwise the
// node is excluded from correlation.
func resolveCorrelationKey(n *EventNode, keyStats []timeline.StatType) (correlationKey, bool) {
	var b strings.Builder
	for _, t := range keyStats {
		v, ok := n.ContextStat(t)
		if !ok {
			return "", false
		}
		i, ok := v.AsInt64()
		if !ok {
			return "", false
		}
		b.WriteString(strconv.FormatInt(i, 10))
		b.WriteByte('/')
	}
	return correlationKey(b.String()), true
}

// connectInterThread links children to parents across lines and planes via
// each rule's correlation key. Rules run independently in declaration
// order; within a rule the parent map is fully built before any child looks
// it up, and a later parent with the same key replaces an earlier one.
func connectInterThread(index eventNodeIndex, connectInfo []ConnectInfo) {
	for _, ci := range connectInfo {
		parentByKey := make(map[correlationKey]*EventNode)
		for _, parent := range index[ci.ParentType] {
			if key, ok := resolveCorrelationKey(parent, ci.KeyStats); ok {
				parentByKey[key] = parent
			}
		}
		for _, child := range index[ci.ChildType] {
			key, ok := resolveCorrelationKey(child, ci.KeyStats)
			if !ok {
				continue
			}
			if parent, ok := parentByKey[key]; ok {
				parent.AddChild(child)
				child.SetParent(parent)
			}
		}
	}
}

// createEventGroups seeds a group at every not-yet-grouped node of each
// root type, in root-priority then discovery order, and propagates the id
// through the node's tree. TraceContext roots additionally get the group
// name written back onto the event itself.
func createEventGroups(rootTypes []timeline.EventType, index eventNodeIndex) GroupNameMap {
	names := make(GroupNameMap)
	var nextGroupID int64
	for _, rootType := range rootTypes {
		for _, root := range index[rootType] {
			if _, assigned := root.GroupID(); assigned {
				// Already reached by a higher-priority root.
				continue
			}
			groupID := nextGroupID
			nextGroupID++
			root.PropagateGroupID(groupID)
			names[groupID] = root.GroupName()
			if rootType == timeline.EventTraceContext {
				root.AddStepName(names[groupID])
			}
		}
	}
	return names
}

// GroupEvents correlates and groups one host plane plus any number of
// device planes in place: events gain group_id stats (and TraceContext
// roots a step_name stat), and the returned table maps each group id to
// its display name. A nil host plane yields an empty table.
func GroupEvents(connectInfo []ConnectInfo, rootTypes []timeline.EventType, host *timeline.Plane, devices []*timeline.Plane) GroupNameMap {
	if host == nil {
		return GroupNameMap{}
	}
	index := newEventNodeIndex(connectInfo, rootTypes)
	connectIntraThread(timeline.NewVisitor(host), host, index)
	for _, device := range devices {
		connectIntraThread(timeline.NewVisitor(device), device, index)
	}
	connectInterThread(index, connectInfo)
	return createEventGroups(rootTypes, index)
}

// DefaultConnectInfo returns the built-in correlation rules: runs connect
// to their executor steps by step id, kernel launches to their device-side
// executions by correlation id.
func DefaultConnectInfo() []ConnectInfo {
	return []ConnectInfo{
		{
			ParentType: timeline.EventFunctionRun,
			ChildType:  timeline.EventExecutorStep,
			KeyStats:   []timeline.StatType{timeline.StatStepID},
		},
		{
			ParentType: timeline.EventSessionRun,
			ChildType:  timeline.EventExecutorStep,
			KeyStats:   []timeline.StatType{timeline.StatStepID},
		},
		{
			ParentType: timeline.EventKernelLaunch,
			ChildType:  timeline.EventKernelExecute,
			KeyStats:   []timeline.StatType{timeline.StatCorrelationID},
		},
	}
}

// DefaultRootTypes returns the built-in group roots in priority order.
func DefaultRootTypes() []timeline.EventType {
	return []timeline.EventType{
		timeline.EventTraceContext,
		timeline.EventFunctionRun,
		timeline.EventSessionRun,
	}
}

// GroupDefaultEvents groups with the built-in rules and roots.
func GroupDefaultEvents(host *timeline.Plane, devices []*timeline.Plane) GroupNameMap {
	return GroupEvents(DefaultConnectInfo(), DefaultRootTypes(), host, devices)
}
