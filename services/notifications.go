package services

import (
	"context"
	"net/http"

	"github.com/CrowderSoup/taskcollab/models"
)

// GetNotifications returns the signed-in user's inbox, newest first.
func (c *Client) GetNotifications(ctx context.Context) ([]models.Notification, error) {
	var notifications []models.Notification
	if err := c.do(ctx, http.MethodGet, "notifications", nil, nil, &notifications, "Failed to fetch notifications"); err != nil {
		return nil, err
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	return notifications, nil
}

// MarkNotificationsRead marks ids read on the server.
func (c *Client) MarkNotificationsRead(ctx context.Context, ids []string) error {
	body := struct {
		NotificationIDs []string `json:"notificationIds"`
	}{NotificationIDs: ids}
	return c.do(ctx, http.MethodPut, "notifications/read", nil, body, nil, "Failed to mark notifications as read")
}

// DeleteReadNotifications removes every read notification on the server.
func (c *Client) DeleteReadNotifications(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "notifications/read", nil, nil, nil, "Failed to delete read notifications")
}
