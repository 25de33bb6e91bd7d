package api

// ItemsResponse from GET /items
type ItemsResponse struct {
	Payload struct {
		Items []APIItem `json:"items"`
	} `json:"payload"`
}

// APIItem is one tradable item in the upstream catalog.
type APIItem struct {
	ID       string `json:"id"`
	URLName  string `json:"url_name"`
	ItemName string `json:"item_name"`
	Thumb    string `json:"thumb"`
}

// ItemDetailResponse from GET /items/{url_name}
type ItemDetailResponse struct {
	Payload struct {
		Item APIItemDetail `json:"item"`
	} `json:"payload"`
}

// APIItemDetail carries the set membership and tags for one item.
type APIItemDetail struct {
	ID         string         `json:"id"`
	ItemsInSet []APISetMember `json:"items_in_set"`
}

// APISetMember is one component of an item set.
type APISetMember struct {
	ID      string   `json:"id"`
	URLName string   `json:"url_name"`
	Tags    []string `json:"tags"`
}

// OrdersResponse from GET /items/{url_name}/orders
type OrdersResponse struct {
	Payload struct {
		Orders []APIOrder `json:"orders"`
	} `json:"payload"`
}

// APIOrder is one currently-listed order as reported by the upstream.
type APIOrder struct {
	ID           string  `json:"id"`
	Platinum     float64 `json:"platinum"`
	Quantity     int     `json:"quantity"`
	OrderType    string  `json:"order_type"`
	Platform     string  `json:"platform"`
	Region       string  `json:"region"`
	Visible      bool    `json:"visible"`
	CreationDate string  `json:"creation_date"`
	LastUpdate   string  `json:"last_update"`
	User         APIUser `json:"user"`
}

// APIUser identifies the order's owner.
type APIUser struct {
	ID         string `json:"id"`
	IngameName string `json:"ingame_name"`
	Status     string `json:"status"`
}
