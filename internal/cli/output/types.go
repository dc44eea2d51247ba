package output

import "time"

// FrameOutput is the structured form of one rendered snapshot.
type FrameOutput struct {
	ID      string        `json:"id" yaml:"id"`
	BuiltAt time.Time     `json:"built_at" yaml:"built_at"`
	Mode    string        `json:"mode" yaml:"mode"`
	Density DensityOutput `json:"density" yaml:"density"`
	Fold    FoldOutput    `json:"fold" yaml:"fold"`
	Records int           `json:"records" yaml:"records"`
	Columns []string      `json:"columns" yaml:"columns"`
	Rows    []string      `json:"rows" yaml:"rows"`
	Cells   []CellOutput  `json:"cells" yaml:"cells"`
	Diff    DiffOutput    `json:"diff" yaml:"diff"`
}

// DensityOutput is the Janus density of a frame.
type DensityOutput struct {
	Value  int    `json:"value" yaml:"value"`
	Extent string `json:"extent" yaml:"extent"`
}

// FoldOutput is how many key levels survive on each side.
type FoldOutput struct {
	Rows    int `json:"rows" yaml:"rows"`
	Columns int `json:"columns" yaml:"columns"`
}

// CellOutput is one drawn cell.
type CellOutput struct {
	ID       string   `json:"id" yaml:"id"`
	X        int      `json:"x" yaml:"x"`
	Y        int      `json:"y" yaml:"y"`
	Row      string   `json:"row" yaml:"row"`
	Column   string   `json:"column" yaml:"column"`
	Mode     string   `json:"mode" yaml:"mode"`
	Tier     string   `json:"tier" yaml:"tier"`
	TierRank int      `json:"-" yaml:"-"`
	Count    int      `json:"count" yaml:"count"`
	Label    string   `json:"label,omitempty" yaml:"label,omitempty"`
	Sparsity float64  `json:"sparsity" yaml:"sparsity"`
	Size     float64  `json:"size" yaml:"size"`
	Color    string   `json:"color,omitempty" yaml:"color,omitempty"`
	Members  []string `json:"members" yaml:"members"`
}

// DiffOutput counts how the frame changed.
type DiffOutput struct {
	Enter     int `json:"enter" yaml:"enter"`
	Update    int `json:"update" yaml:"update"`
	Exit      int `json:"exit" yaml:"exit"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
}

// HeaderOutput is one header tree, flattened depth first.
type HeaderOutput struct {
	Orientation string       `json:"orientation" yaml:"orientation"`
	Depth       int          `json:"depth" yaml:"depth"`
	LeafCount   int          `json:"leaf_count" yaml:"leaf_count"`
	Unassigned  bool         `json:"unassigned" yaml:"unassigned"`
	Facets      []string     `json:"facets" yaml:"facets"`
	Visible     []int        `json:"visible_levels" yaml:"visible_levels"`
	Nodes       []NodeOutput `json:"nodes" yaml:"nodes"`
}

// NodeOutput is one header node.
type NodeOutput struct {
	ID        string `json:"id" yaml:"id"`
	Label     string `json:"label" yaml:"label"`
	Level     int    `json:"level" yaml:"level"`
	Span      int    `json:"span" yaml:"span"`
	LeafSpan  int    `json:"leaf_span" yaml:"leaf_span"`
	Count     int    `json:"count" yaml:"count"`
	Collapsed bool   `json:"collapsed,omitempty" yaml:"collapsed,omitempty"`
}

// ScaleOutput describes one axis scale.
type ScaleOutput struct {
	Plane     string           `json:"plane" yaml:"plane"`
	Axis      string           `json:"axis" yaml:"axis"`
	Facet     string           `json:"facet" yaml:"facet"`
	Values    []string         `json:"values,omitempty" yaml:"values,omitempty"`
	Min       float64          `json:"min" yaml:"min"`
	Max       float64          `json:"max" yaml:"max"`
	RangeMin  float64          `json:"range_min" yaml:"range_min"`
	RangeMax  float64          `json:"range_max" yaml:"range_max"`
	Bandwidth float64          `json:"bandwidth" yaml:"bandwidth"`
	Positions []PositionOutput `json:"positions,omitempty" yaml:"positions,omitempty"`
}

// PositionOutput pairs a domain value with its position.
type PositionOutput struct {
	Value    string  `json:"value" yaml:"value"`
	Position float64 `json:"position" yaml:"position"`
}

// AxisOutput describes a LATCH axis.
type AxisOutput struct {
	Axis     string   `json:"axis" yaml:"axis"`
	Discrete bool     `json:"discrete" yaml:"discrete"`
	Facets   []string `json:"facets,omitempty" yaml:"facets,omitempty"`
	Mapped   []string `json:"mapped,omitempty" yaml:"mapped,omitempty"`
}

// SourceOutput describes a registered source type.
type SourceOutput struct {
	Type   string   `json:"type" yaml:"type"`
	Active bool     `json:"active" yaml:"active"`
	Tables []string `json:"tables,omitempty" yaml:"tables,omitempty"`
}
