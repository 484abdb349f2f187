package app

import "github.com/CrowderSoup/taskcollab/models"

// View is the full presentation state at one instant.
type View struct {
	Route         string                `json:"route"`
	Authenticated bool                  `json:"authenticated"`
	User          *models.User          `json:"user,omitempty"`
	Tasks         []models.Task         `json:"tasks"`
	Filters       models.Filters        `json:"filters"`
	Loading       bool                  `json:"loading"`
	Error         string                `json:"error,omitempty"`
	Users         []models.User         `json:"users"`
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
	Alert         *Alert                `json:"alert,omitempty"`
}

// View snapshots the current presentation state.
func (a *App) View() View {
	v := View{
		Route:         a.Nav.Route(),
		Authenticated: a.Session.IsAuthenticated(),
		User:          a.Session.User(),
		Tasks:         a.Tasks.Tasks(),
		Filters:       a.Tasks.Filters(),
		Loading:       a.Tasks.Loading() || a.Session.Loading(),
		Error:         a.Tasks.Err(),
		Users:         a.Users.Users(),
		Notifications: a.Notifications.Notifications(),
		UnreadCount:   a.Notifications.UnreadCount(),
	}
	if v.Error == "" {
		v.Error = a.Session.Err()
	}
	if alert, ok := a.Alerts.Current(); ok {
		v.Alert = &alert
	}
	return v
}

// Change names the part of the view that changed.
type Change string

const (
	ChangeSession       Change = "session"
	ChangeTasks         Change = "tasks"
	ChangeUsers         Change = "users"
	ChangeNotifications Change = "notifications"
	ChangeRoute         Change = "route"
	ChangeAlert         Change = "alert"
)

// Watch calls fn after every change of the view and returns the func that
// stops watching.
func (a *App) Watch(fn func(Change)) func() {
	offs := []func(){
		a.Session.Subscribe(func() { fn(ChangeSession) }),
		a.Tasks.Subscribe(func() { fn(ChangeTasks) }),
		a.Users.Subscribe(func() { fn(ChangeUsers) }),
		a.Notifications.Subscribe(func() { fn(ChangeNotifications) }),
		a.Nav.Subscribe(func(string) { fn(ChangeRoute) }),
		a.Alerts.Subscribe(func(*Alert) { fn(ChangeAlert) }),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}
