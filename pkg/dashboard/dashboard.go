package dashboard

import (
	"strings"

	"github.com/google/uuid"

	"github.com/blackroad/metricboard/pkg/types"
)

// PanelType identifies the visualization used for a panel
type PanelType string

// Supported panel types, matching the Grafana vocabulary.
const (
	PanelTimeseries PanelType = "timeseries"
	PanelGauge      PanelType = "gauge"
	PanelStat       PanelType = "stat"
	PanelBar        PanelType = "bar"
	PanelTable      PanelType = "table"
	PanelHeatmap    PanelType = "heatmap"
)

// Valid reports whether t is a known panel type
func (t PanelType) Valid() bool {
	switch t {
	case PanelTimeseries, PanelGauge, PanelStat, PanelBar, PanelTable, PanelHeatmap:
		return true
	}
	return false
}

// GridPos is a panel's position and size on the dashboard grid
type GridPos struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// DefaultGridPos returns the default panel placement
func DefaultGridPos() GridPos {
	return GridPos{X: 0, Y: 0, W: 12, H: 8}
}

// Defaults for dashboard-level display settings.
const (
	DefaultRefresh   = "30s"
	DefaultTimeRange = "now-1h"
)

// Panel is a dashboard's visual unit bound to one metric query.
// Panels are owned exclusively by their dashboard.
type Panel struct {
	ID      string
	Title   string
	Type    PanelType
	Query   types.QuerySpec
	GridPos GridPos
}

// TemplateVariable is a named, dashboard-scoped substitution value.
// Panel queries reference it as "$name" inside label filter values.
type TemplateVariable struct {
	Name          string
	AllowedValues []string
	Current       string
}

// Dashboard is an ordered collection of panels and template variables
type Dashboard struct {
	ID          string
	Title       string
	Description string
	Tags        []string

	// Refresh is the auto-refresh interval, e.g. "30s".
	Refresh string

	// TimeRange is the default relative display range, e.g. "now-1h".
	// Panels still carry absolute query ranges; this only seeds the
	// viewer's time picker.
	TimeRange string

	Panels    []Panel
	Variables []TemplateVariable
}

// New creates an empty dashboard with a fresh unique id
func New(title string) *Dashboard {
	return &Dashboard{
		ID:        uuid.NewString(),
		Title:     title,
		Refresh:   DefaultRefresh,
		TimeRange: DefaultTimeRange,
	}
}

// AddPanel appends a panel, rejecting duplicate panel ids
func (d *Dashboard) AddPanel(p Panel) error {
	if p.ID == "" {
		return types.NewValidationError("panel id is empty")
	}
	if !p.Type.Valid() {
		return types.NewValidationError("unknown panel type %q", p.Type)
	}
	for _, existing := range d.Panels {
		if existing.ID == p.ID {
			return types.NewValidationError("panel id %q already present in dashboard %q", p.ID, d.ID)
		}
	}
	if p.GridPos == (GridPos{}) {
		p.GridPos = DefaultGridPos()
	}
	d.Panels = append(d.Panels, p)
	return nil
}

// RemovePanel deletes the panel with the given id. Removing an absent
// panel is a no-op.
func (d *Dashboard) RemovePanel(id string) {
	for i, p := range d.Panels {
		if p.ID == id {
			d.Panels = append(d.Panels[:i], d.Panels[i+1:]...)
			return
		}
	}
}

// Panel returns the panel with the given id
func (d *Dashboard) Panel(id string) (Panel, bool) {
	for _, p := range d.Panels {
		if p.ID == id {
			return p, true
		}
	}
	return Panel{}, false
}

// AddVariable appends a template variable, rejecting duplicate names.
// An empty current value defaults to the first allowed value.
func (d *Dashboard) AddVariable(v TemplateVariable) error {
	if v.Name == "" {
		return types.NewValidationError("variable name is empty")
	}
	for _, existing := range d.Variables {
		if existing.Name == v.Name {
			return types.NewValidationError("variable %q already present in dashboard %q", v.Name, d.ID)
		}
	}
	if v.Current == "" && len(v.AllowedValues) > 0 {
		v.Current = v.AllowedValues[0]
	}
	d.Variables = append(d.Variables, v)
	return nil
}

// SetVariable updates a variable's current value. Unknown names and
// values outside the allowed list are rejected.
func (d *Dashboard) SetVariable(name, value string) error {
	for i, v := range d.Variables {
		if v.Name != name {
			continue
		}
		for _, allowed := range v.AllowedValues {
			if allowed == value {
				d.Variables[i].Current = value
				return nil
			}
		}
		return types.NewValidationError("value %q not allowed for variable %q", value, name)
	}
	return types.NewValidationError("unknown variable %q", name)
}

// ResolveQuery returns the panel's query spec with "$name" references
// in label filter values replaced by the variables' current values.
// Substitution is a plain string replace done at render time.
func (d *Dashboard) ResolveQuery(p Panel) types.QuerySpec {
	spec := p.Query
	if len(spec.LabelFilter) == 0 || len(d.Variables) == 0 {
		return spec
	}

	resolved := make(map[string]string, len(spec.LabelFilter))
	for k, v := range spec.LabelFilter {
		for _, tv := range d.Variables {
			v = strings.ReplaceAll(v, "$"+tv.Name, tv.Current)
		}
		resolved[k] = v
	}
	spec.LabelFilter = resolved
	return spec
}
