package lister

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v55/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	apperrors "github.com/kurihiro0119/classroom-sync/internal/errors"
)

// githubLister implements Lister using GitHub API
type githubLister struct {
	client      *github.Client
	rateLimiter RateLimiter
	logger      *zap.Logger
}

// NewGitHubLister creates a new GitHub lister authenticated with token
func NewGitHubLister(token string, logger *zap.Logger) Lister {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return newGitHubLister(github.NewClient(tc), NewRateLimiter(DefaultRateLimiterOptions, logger), logger)
}

func newGitHubLister(client *github.Client, limiter RateLimiter, logger *zap.Logger) *githubLister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &githubLister{
		client:      client,
		rateLimiter: limiter,
		logger:      logger,
	}
}

// Principal returns the login of the authenticated user
func (l *githubLister) Principal(ctx context.Context) (string, error) {
	if err := l.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	user, resp, err := l.client.Users.Get(ctx, "")
	if err != nil {
		return "", classifyAPIError(err, "authenticated user")
	}
	l.updateRateLimitFromResponse(resp)

	return user.GetLogin(), nil
}

// List retrieves the repositories of org whose name starts with prefix
func (l *githubLister) List(ctx context.Context, org, prefix string) ([]string, error) {
	if err := l.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var names []string
	seen := 0
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		repos, resp, err := l.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, classifyAPIError(err, fmt.Sprintf("organization %s", org))
		}

		l.updateRateLimitFromResponse(resp)

		for _, repo := range repos {
			seen++
			if strings.HasPrefix(repo.GetName(), prefix) {
				names = append(names, repo.GetName())
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage

		if err := l.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	l.logger.Debug("listed repositories",
		zap.String("org", org),
		zap.String("prefix", prefix),
		zap.Int("visible", seen),
		zap.Int("matched", len(names)),
	)

	return names, nil
}

// updateRateLimitFromResponse updates the rate limiter from API response
func (l *githubLister) updateRateLimitFromResponse(resp *github.Response) {
	if resp != nil && resp.Rate.Limit > 0 && resp.Rate.Remaining >= 0 {
		l.rateLimiter.UpdateLimit(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
}

// classifyAPIError maps go-github errors onto the application taxonomy
func classifyAPIError(err error, resource string) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return apperrors.NewRateLimitedError("GitHub API rate limit exceeded", err)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return apperrors.NewRateLimitedError("GitHub API secondary rate limit exceeded", err)
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.NewUnauthorizedError("bad or expired token", err)
		case http.StatusNotFound:
			return apperrors.NewNotFoundError(resource)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return apperrors.NewInternalError(fmt.Sprintf("failed to query %s", resource), err)
}
