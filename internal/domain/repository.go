package domain

// Repository represents the git repository being observed.
type Repository struct {
	Host string
	// ProjectPath is the full namespace path, including nested groups
	// ("gitlab-org/ci/runner").
	ProjectPath string
	Name        string
	RemoteURL   string
}
