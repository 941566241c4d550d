package gitlab

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const calloutsQuery = `query getUserCallouts {
  currentUser {
    id
    callouts {
      nodes { featureName dismissedAt }
    }
  }
}`

const dismissCalloutMutation = `mutation dismissUserCallout($input: UserCalloutCreateInput!) {
  userCalloutCreate(input: $input) {
    errors
    userCallout { featureName dismissedAt }
  }
}`

// ErrCalloutRejected is returned when GitLab accepts the request but reports
// errors in the mutation payload.
var ErrCalloutRejected = errors.New("callout dismissal rejected")

type calloutsResponse struct {
	CurrentUser *struct {
		Callouts *nodes[struct {
			FeatureName string `json:"featureName"`
		}] `json:"callouts"`
	} `json:"currentUser"`
}

type dismissResponse struct {
	UserCalloutCreate *struct {
		Errors []string `json:"errors"`
	} `json:"userCalloutCreate"`
}

// IsDismissed reports whether the current user dismissed feature. GitLab
// returns feature names as upper-case enum values.
func (a *Adapter) IsDismissed(ctx context.Context, feature string) (bool, error) {
	var resp calloutsResponse
	if err := a.graphql(ctx, calloutsQuery, nil, &resp); err != nil {
		return false, fmt.Errorf("fetching callouts: %w", err)
	}
	if resp.CurrentUser == nil || resp.CurrentUser.Callouts == nil {
		return false, nil
	}
	for _, c := range resp.CurrentUser.Callouts.Nodes {
		if strings.EqualFold(c.FeatureName, feature) {
			return true, nil
		}
	}
	return false, nil
}

// Dismiss records feature as dismissed for the current user.
func (a *Adapter) Dismiss(ctx context.Context, feature string) error {
	vars := map[string]any{"input": map[string]string{"featureName": strings.ToLower(feature)}}
	var resp dismissResponse
	if err := a.graphql(ctx, dismissCalloutMutation, vars, &resp); err != nil {
		return fmt.Errorf("dismissing callout %s: %w", feature, err)
	}
	if resp.UserCalloutCreate != nil && len(resp.UserCalloutCreate.Errors) > 0 {
		return fmt.Errorf("%w: %s", ErrCalloutRejected, strings.Join(resp.UserCalloutCreate.Errors, "; "))
	}
	return nil
}
