package types

// RelaySource 定义了一个 relay 列表来源站点。
// 这是 sources.json 文件的核心数据结构。
type RelaySource struct {
	Name string `json:"name"`

	// URL may contain a "{page}" placeholder. Without it only one page is fetched.
	URL      string `json:"url"`
	MaxPages int    `json:"max_pages,omitempty"`

	// PaginationBase is prefixed to the last/active page XPaths.
	PaginationBase string `json:"pagination_base,omitempty"`

	// RowXPath selects one node per relay; the remaining expressions are
	// evaluated relative to each row.
	RowXPath      string `json:"row_xpath"`
	HostXPath     string `json:"host_xpath"`
	PortXPath     string `json:"port_xpath"`
	ProtocolXPath string `json:"protocol_xpath,omitempty"`

	// Protocol is used when ProtocolXPath is empty or yields nothing.
	Protocol string `json:"protocol,omitempty"`
}
