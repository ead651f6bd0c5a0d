package rbac

import "time"

// Role groups capabilities for a class of warehouse user.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is an atomic capability.
type Permission struct {
	ID          int64
	Name        string
	Description string
}
