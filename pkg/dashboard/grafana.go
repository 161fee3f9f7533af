package dashboard

import (
	"encoding/json"

	"github.com/blackroad/metricboard/pkg/types"
)

// Grafana-compatible document schema. These types exist only at the
// serialization boundary; the Dashboard model's internal shape is not
// dictated by the external field names.

type grafanaDashboard struct {
	UID           string           `json:"uid"`
	Title         string           `json:"title"`
	Description   string           `json:"description,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	Panels        []grafanaPanel   `json:"panels"`
	Templating    grafanaTemplates `json:"templating"`
	Time          grafanaTime      `json:"time"`
	Refresh       string           `json:"refresh"`
	SchemaVersion int              `json:"schemaVersion"`
}

type grafanaPanel struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Type    string         `json:"type"`
	Targets []grafanaQuery `json:"targets"`
	GridPos grafanaGridPos `json:"gridPos"`
}

type grafanaQuery struct {
	Metric string            `json:"metric"`
	From   int64             `json:"from"`
	To     int64             `json:"to"`
	Labels map[string]string `json:"labels,omitempty"`
}

type grafanaGridPos struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type grafanaTemplates struct {
	List []grafanaVariable `json:"list"`
}

type grafanaVariable struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Options []grafanaOption `json:"options"`
	Current grafanaOption   `json:"current"`
}

type grafanaOption struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

type grafanaTime struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MarshalGrafana renders a dashboard as a Grafana-compatible JSON
// document
func MarshalGrafana(d *Dashboard) ([]byte, error) {
	doc := grafanaDashboard{
		UID:           d.ID,
		Title:         d.Title,
		Description:   d.Description,
		Tags:          d.Tags,
		Panels:        make([]grafanaPanel, 0, len(d.Panels)),
		Time:          grafanaTime{From: d.TimeRange, To: "now"},
		Refresh:       d.Refresh,
		SchemaVersion: 39,
	}
	if doc.Refresh == "" {
		doc.Refresh = DefaultRefresh
	}
	if doc.Time.From == "" {
		doc.Time.From = DefaultTimeRange
	}

	for _, p := range d.Panels {
		doc.Panels = append(doc.Panels, grafanaPanel{
			ID:    p.ID,
			Title: p.Title,
			Type:  string(p.Type),
			Targets: []grafanaQuery{{
				Metric: p.Query.Metric,
				From:   p.Query.Range.From,
				To:     p.Query.Range.To,
				Labels: p.Query.LabelFilter,
			}},
			GridPos: grafanaGridPos(p.GridPos),
		})
	}

	for _, v := range d.Variables {
		gv := grafanaVariable{
			Name:    v.Name,
			Type:    "custom",
			Current: grafanaOption{Text: v.Current, Value: v.Current},
		}
		for _, allowed := range v.AllowedValues {
			gv.Options = append(gv.Options, grafanaOption{Text: allowed, Value: allowed})
		}
		doc.Templating.List = append(doc.Templating.List, gv)
	}

	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalGrafana constructs a dashboard from a Grafana-compatible
// JSON document. Panels and variables go through the model's
// constructors so the usual uniqueness rules apply.
func UnmarshalGrafana(data []byte) (*Dashboard, error) {
	var doc grafanaDashboard
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, types.NewValidationError("malformed dashboard document: %v", err)
	}
	if doc.Title == "" {
		return nil, types.NewValidationError("dashboard title is empty")
	}

	d := New(doc.Title)
	if doc.UID != "" {
		d.ID = doc.UID
	}
	d.Description = doc.Description
	d.Tags = doc.Tags
	if doc.Refresh != "" {
		d.Refresh = doc.Refresh
	}
	if doc.Time.From != "" {
		d.TimeRange = doc.Time.From
	}

	for _, gp := range doc.Panels {
		p := Panel{
			ID:      gp.ID,
			Title:   gp.Title,
			Type:    PanelType(gp.Type),
			GridPos: GridPos(gp.GridPos),
		}
		if len(gp.Targets) > 0 {
			t := gp.Targets[0]
			p.Query = types.QuerySpec{
				Metric:      t.Metric,
				Range:       types.TimeRange{From: t.From, To: t.To},
				LabelFilter: t.Labels,
			}
		}
		if err := d.AddPanel(p); err != nil {
			return nil, err
		}
	}

	for _, gv := range doc.Templating.List {
		v := TemplateVariable{
			Name:    gv.Name,
			Current: gv.Current.Value,
		}
		for _, opt := range gv.Options {
			v.AllowedValues = append(v.AllowedValues, opt.Value)
		}
		if err := d.AddVariable(v); err != nil {
			return nil, err
		}
	}

	return d, nil
}
