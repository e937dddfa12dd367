package domain

// UserProfile is the persisted visitor profile.
type UserProfile struct {
	PK          string
	SK          string
	UserID      string
	Nickname    string
	CreatedAt   string
	LastLoginAt string
	TTL         int64
}

// Notification is one persisted in-app notification.
type Notification struct {
	PK      string
	SK      string
	UserID  string
	Title   string
	Message string
	Kind    string
	Read    bool
	TTL     int64
}

// Trip is the completed-tour record written when the chat hands off to
// the ending screen. ScanArtifact is an opaque token from the camera
// subsystem and is stored unparsed.
type Trip struct {
	PK            string
	SK            string
	TripID        string
	UserID        string
	Nickname      string
	VisitedPlaces []string
	ScanArtifact  string
	CompletedAt   string
	TTL           int64
}
