package handlers

import (
	"time"

	"hfcloud/console/internal/models"
	"hfcloud/console/internal/permissions"
)

type userResponse struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	Role            string     `json:"role"`
	RoleLabel       string     `json:"roleLabel"`
	Status          string     `json:"status"`
	RelatedProjects []string   `json:"relatedProjects"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func toUserResponse(u models.User) userResponse {
	projects := u.RelatedProjects
	if projects == nil {
		projects = []string{}
	}
	return userResponse{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		Role:            string(u.Role),
		RoleLabel:       permissions.Label(u.Role),
		Status:          string(u.Status),
		RelatedProjects: projects,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

type sessionResponse struct {
	ID             string    `json:"id"`
	DeviceInfo     string    `json:"deviceInfo"`
	IPAddress      string    `json:"ipAddress"`
	LoginAt        time.Time `json:"loginAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	Current        bool      `json:"current"`
}

func toSessionResponse(s models.Session, currentID string) sessionResponse {
	return sessionResponse{
		ID:             s.ID,
		DeviceInfo:     s.DeviceInfo,
		IPAddress:      s.IPAddress,
		LoginAt:        s.LoginAt,
		LastActivityAt: s.LastActivityAt,
		Current:        s.ID == currentID,
	}
}

// siteResponse is the public presentation view of the system configuration.
type siteResponse struct {
	Title           string `json:"title"`
	LogoURL         string `json:"logoUrl"`
	LogoSize        int    `json:"logoSize"`
	FaviconURL      string `json:"faviconUrl"`
	Announcement    string `json:"announcement"`
	MaintenanceMode bool   `json:"maintenanceMode"`
}

func toSiteResponse(cfg models.SystemConfig) siteResponse {
	return siteResponse{
		Title:           cfg.SystemName,
		LogoURL:         cfg.LogoURL,
		LogoSize:        cfg.LogoSize,
		FaviconURL:      cfg.FaviconURL,
		Announcement:    cfg.Announcement,
		MaintenanceMode: cfg.MaintenanceMode,
	}
}
