package services

import (
	"context"
	"net/http"
	"net/url"

	"github.com/CrowderSoup/taskcollab/models"
)

func taskPath(id string, rest ...string) string {
	p := "tasks/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// GetTasks lists tasks matching filters.
func (c *Client) GetTasks(ctx context.Context, filters models.Filters) ([]models.Task, error) {
	var tasks []models.Task
	if err := c.do(ctx, http.MethodGet, "tasks", filters.Query(), nil, &tasks, "Failed to fetch tasks"); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// GetTask loads a single task.
func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id), nil, nil, &task, "Failed to fetch task"); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask submits draft and returns the stored task.
func (c *Client) CreateTask(ctx context.Context, draft models.TaskDraft) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPost, "tasks", nil, draft, &task, "Failed to create task"); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask sends patch and returns the task as the server stored it.
func (c *Client) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPut, taskPath(id), nil, patch, &task, "Failed to update task"); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask removes the task with id.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil, nil, "Failed to delete task")
}

// AddComment posts a comment and returns the whole task as the server now
// holds it.
func (c *Client) AddComment(ctx context.Context, id, text string) (*models.Task, error) {
	var task models.Task
	body := map[string]string{"text": text}
	if err := c.do(ctx, http.MethodPost, taskPath(id, "comments"), nil, body, &task, "Failed to add comment"); err != nil {
		return nil, err
	}
	return &task, nil
}
