package loam

// FlowDocument is the on-disk shape of a flow: the editor's export with
// optional metadata. Nodes and edges stay loosely typed so any front-matter or
// JSON encoding can carry them; they are decoded into domain types afterwards.
type FlowDocument struct {
	ID            string           `json:"id" mapstructure:"id"`
	OwnerID       string           `json:"ownerId" mapstructure:"ownerId"`
	Name          string           `json:"flowName" mapstructure:"flowName"`
	WebsiteDomain string           `json:"websiteDomain" mapstructure:"websiteDomain"`
	Nodes         []map[string]any `json:"nodes" mapstructure:"nodes"`
	Edges         []map[string]any `json:"edges" mapstructure:"edges"`
}
