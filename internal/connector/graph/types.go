package graph

// DriveItem is the subset of the Graph driveItem resource the connector uses.
type DriveItem struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Size             int64      `json:"size"`
	WebURL           string     `json:"webUrl"`
	CreatedDateTime  string     `json:"createdDateTime"`
	ModifiedDateTime string     `json:"lastModifiedDateTime"`
	File             *FileFacet `json:"file,omitempty"`
	Folder           *Folder    `json:"folder,omitempty"`
	CreatedBy        *Identity  `json:"createdBy,omitempty"`
	ModifiedBy       *Identity  `json:"lastModifiedBy,omitempty"`
}

type FileFacet struct {
	MimeType string `json:"mimeType"`
}

type Folder struct {
	ChildCount int `json:"childCount"`
}

type Identity struct {
	User *User `json:"user,omitempty"`
}

type User struct {
	DisplayName string `json:"displayName"`
}

// ListResponse is one page of a children listing.
type ListResponse struct {
	Value    []DriveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// ManagedDevice is the subset of the Intune managedDevice resource exported
// by the graph.device dataset.
type ManagedDevice struct {
	ID              string `json:"id"`
	DeviceName      string `json:"deviceName"`
	OperatingSystem string `json:"operatingSystem"`
	OSVersion       string `json:"osVersion"`
	ComplianceState string `json:"complianceState"`
	UserPrincipal   string `json:"userPrincipalName"`
	LastSyncAt      string `json:"lastSyncDateTime"`
	SerialNumber    string `json:"serialNumber"`
	Model           string `json:"model"`
	Manufacturer    string `json:"manufacturer"`
}

// DeviceListResponse is one page of the managed device listing.
type DeviceListResponse struct {
	Value    []ManagedDevice `json:"value"`
	NextLink string          `json:"@odata.nextLink"`
}

// FileItem is the transfer engine's view of an enumerated drive file.
type FileItem struct {
	ID   string
	Name string
	// Path is the drive-relative path including the file name.
	Path string
	Size int64
}

// TokenAudit summarizes the claims of the app's access token.
type TokenAudit struct {
	AppID        string
	TenantID     string
	Roles        []string
	MissingRoles []string
	ExpiresAt    string
}
