package qir

// Stage represents one step of an aggregation pipeline.
//
// This is a sealed interface - only types in this package implement it.
// Stage order is semantically significant and is preserved exactly.
type Stage interface {
	stageNode() // Marker method - seals interface to this package
}

// AccFn is a canonical accumulator function.
type AccFn string

const (
	AccSum      AccFn = "sum"
	AccAvg      AccFn = "avg"
	AccMin      AccFn = "min"
	AccMax      AccFn = "max"
	AccCount    AccFn = "count"
	AccFirst    AccFn = "first"
	AccLast     AccFn = "last"
	AccPush     AccFn = "push"
	AccAddToSet AccFn = "addToSet"
)

// MatchStage filters the documents flowing through the pipeline.
type MatchStage struct {
	Filter Filter
}

func (MatchStage) stageNode() {}

// GroupKey is one component of a group key.
// A single key with an empty Name is a scalar key (_id: "$field").
type GroupKey struct {
	Name  string
	Field string
}

// Aggregation computes one named output of a group.
// Source is empty only for AccCount, which then counts documents.
type Aggregation struct {
	Name   string
	Fn     AccFn
	Source string
}

// GroupStage groups documents by Keys. With no keys, all documents form
// one group.
type GroupStage struct {
	Keys         []GroupKey
	Aggregations []Aggregation
}

func (GroupStage) stageNode() {}

// Scalar reports whether the group is keyed by a single unnamed field.
func (g GroupStage) Scalar() bool {
	return len(g.Keys) == 1 && g.Keys[0].Name == ""
}

// Aggregation returns the aggregation named name.
func (g GroupStage) Aggregation(name string) (Aggregation, bool) {
	for _, a := range g.Aggregations {
		if a.Name == name {
			return a, true
		}
	}
	return Aggregation{}, false
}

// ProjectStage reshapes documents.
type ProjectStage struct {
	Projection Projection
}

func (ProjectStage) stageNode() {}

// SortStage orders documents.
type SortStage struct {
	Keys []SortKey
}

func (SortStage) stageNode() {}

// LimitStage keeps the first N documents.
type LimitStage struct {
	N int64
}

func (LimitStage) stageNode() {}

// SkipStage drops the first N documents.
type SkipStage struct {
	N int64
}

func (SkipStage) stageNode() {}

// LookupStage joins documents of another collection under As.
// It is the image of a relational JOIN ... ON LocalField = As.ForeignField.
type LookupStage struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
}

func (LookupStage) stageNode() {}

// UnwindStage flattens the array at Path. PreserveEmpty keeps documents
// whose array is empty (a left join).
type UnwindStage struct {
	Path          string
	PreserveEmpty bool
}

func (UnwindStage) stageNode() {}

// StageName returns the canonical name of a stage, used in error messages.
func StageName(s Stage) string {
	switch s.(type) {
	case MatchStage:
		return "match"
	case GroupStage:
		return "group"
	case ProjectStage:
		return "project"
	case SortStage:
		return "sort"
	case LimitStage:
		return "limit"
	case SkipStage:
		return "skip"
	case LookupStage:
		return "lookup"
	case UnwindStage:
		return "unwind"
	default:
		return "unknown"
	}
}
