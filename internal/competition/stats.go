package competition

import (
	"github.com/automerge/automerge-go"
)

// Document layout, by convention with the clients:
//
//	info:    map with a "name" string
//	teams:   map or list of team entries
//	players: map or list of player entries
//	stages:  map or list of stages, each with a "timeline" collection of
//	         entries carrying "durationMinutes"

// DeriveSummary recomputes the summary statistics from the document's current
// merged content. It is a pure function of the document and is evaluated in
// full on every persist; nothing is patched incrementally, so the stored
// summary cannot drift from the replicated state.
func DeriveSummary(doc *automerge.Doc) Summary {
	var summary Summary
	root := doc.RootMap()

	if info, err := root.Get("info"); err == nil && info.Kind() == automerge.KindMap {
		if name, err := info.Map().Get("name"); err == nil && name.Kind() == automerge.KindStr {
			summary.Name = name.Str()
		}
	}

	summary.TeamCount = collectionLen(root, "teams")
	summary.PlayerCount = collectionLen(root, "players")

	if stages, err := root.Get("stages"); err == nil {
		for _, stage := range collectionValues(stages) {
			if stage.Kind() != automerge.KindMap {
				continue
			}
			timeline, err := stage.Map().Get("timeline")
			if err != nil {
				continue
			}
			for _, entry := range collectionValues(timeline) {
				if entry.Kind() != automerge.KindMap {
					continue
				}
				duration, err := entry.Map().Get("durationMinutes")
				if err != nil {
					continue
				}
				summary.DurationMinutes += asInt64(duration)
			}
		}
	}

	return summary
}

func collectionLen(root *automerge.Map, key string) int {
	value, err := root.Get(key)
	if err != nil {
		return 0
	}
	return len(collectionValues(value))
}

// collectionValues flattens a map- or list-valued node into its entries.
// Clients key teams and players by id, but older documents carried lists.
func collectionValues(value *automerge.Value) []*automerge.Value {
	switch value.Kind() {
	case automerge.KindMap:
		entries, err := value.Map().Values()
		if err != nil {
			return nil
		}
		values := make([]*automerge.Value, 0, len(entries))
		for _, entry := range entries {
			values = append(values, entry)
		}
		return values
	case automerge.KindList:
		list := value.List()
		values := make([]*automerge.Value, 0, list.Len())
		for i := 0; i < list.Len(); i++ {
			item, err := list.Get(i)
			if err != nil {
				continue
			}
			values = append(values, item)
		}
		return values
	default:
		return nil
	}
}

func asInt64(value *automerge.Value) int64 {
	switch value.Kind() {
	case automerge.KindInt64:
		return value.Int64()
	case automerge.KindUint64:
		return int64(value.Uint64())
	case automerge.KindFloat64:
		return int64(value.Float64())
	default:
		return 0
	}
}
