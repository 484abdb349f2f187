package services

import (
	"context"
	"net/http"

	"github.com/CrowderSoup/taskcollab/models"
)

// GetUsers lists every user tasks can be assigned to.
func (c *Client) GetUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, http.MethodGet, "users", nil, nil, &users, "Failed to fetch users"); err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}
