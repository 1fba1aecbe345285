package storage

// Person 新建联系人的输入
// Person is the input for a new person contact.
type Person struct {
	FirstName   string
	LastName    string
	Emails      []string
	Phones      []string
	CompanyName string
	JobTitle    string
	City        string
	State       string
	LinkedIn    string
	Description string
}

// PersonRecord 已保存的联系人
// PersonRecord is a stored person contact.
type PersonRecord struct {
	ID          string   `json:"id"`
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	Emails      []string `json:"emails,omitempty"`
	Phones      []string `json:"phones,omitempty"`
	CompanyID   string   `json:"company_id,omitempty"`
	CompanyName string   `json:"company_name,omitempty"`
	JobTitle    string   `json:"job_title,omitempty"`
	City        string   `json:"city,omitempty"`
	State       string   `json:"state,omitempty"`
	LinkedIn    string   `json:"linkedin,omitempty"`
	Description string   `json:"description,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

// ClientState 客户端 blob 的元数据
// ClientState describes one stored client blob.
type ClientState struct {
	ClientID   string
	RawSize    int64
	StoredSize int64
	UpdatedAt  string
}
