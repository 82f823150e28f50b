// File: internal/backend/request.go
// Brief: Deployment submission payload and its validation rules.

package backend

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// appNamePattern matches names the backend can use as a Docker image name.
var appNamePattern = regexp.MustCompile(`^[a-z0-9._-]+$`)

// AppTypes lists the application runtimes the backend can build.
var AppTypes = []string{"nodejs", "python", "go", "rust"}

// DeploymentRequest is the body of POST /create.
type DeploymentRequest struct {
	AppName   string `json:"app_name"`
	AppType   string `json:"app_type"`
	GitHubURL string `json:"github_url"`
}

// Normalize trims whitespace and lowercases the app type.
func (r DeploymentRequest) Normalize() DeploymentRequest {
	return DeploymentRequest{
		AppName:   strings.TrimSpace(r.AppName),
		AppType:   strings.ToLower(strings.TrimSpace(r.AppType)),
		GitHubURL: strings.TrimSpace(r.GitHubURL),
	}
}

// Validate reports every problem with the request at once.
func (r DeploymentRequest) Validate() error {
	var errs []error
	switch {
	case r.AppName == "":
		errs = append(errs, errors.New("application name is required"))
	case !appNamePattern.MatchString(r.AppName):
		errs = append(errs, fmt.Errorf("invalid application name %q: only lowercase letters, numbers, '.', '-', and '_' are allowed", r.AppName))
	}
	switch {
	case r.AppType == "":
		errs = append(errs, errors.New("application type is required"))
	case !validAppType(r.AppType):
		errs = append(errs, fmt.Errorf("unsupported application type %q (expected %s)", r.AppType, strings.Join(AppTypes, ", ")))
	}
	if err := validateRepoURL(r.GitHubURL); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidRequest, errors.Join(errs...))
}

func validAppType(t string) bool {
	for _, candidate := range AppTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

func validateRepoURL(raw string) error {
	if raw == "" {
		return errors.New("repository URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid repository URL %q", raw)
	}
	return nil
}
