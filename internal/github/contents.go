package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// contentsPath builds the contents API path for a repository path.
func contentsPath(owner, repo, path string) string {
	p := "/repos/" + owner + "/" + repo + "/contents"
	if path != "" {
		p += "/" + path
	}
	return p
}

// GetContents fetches the entry at path. For a file it returns the single
// entry; for a directory it returns the directory members. ref selects the
// branch, tag or commit to read from (empty for the default branch).
func (c *Client) GetContents(ctx context.Context, owner, repo, path, ref string) (*ContentEntry, []ContentEntry, error) {
	c.logger.DebugContext(ctx, "fetching contents", "owner", owner, "repo", repo, "path", path, "ref", ref)

	before := time.Now()

	apiPath := contentsPath(owner, repo, path)
	if ref != "" {
		apiPath += "?ref=" + url.QueryEscape(ref)
	}

	// The endpoint returns an object for a file and an array for a
	// directory, so decode in two steps.
	var raw json.RawMessage
	if err := c.do(ctx, "GET", apiPath, nil, &raw); err != nil {
		return nil, nil, fmt.Errorf("get contents %s/%s/%s: %w", owner, repo, path, err)
	}

	if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		var entries []ContentEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, nil, fmt.Errorf("decode directory listing %s: %w", path, err)
		}
		c.logger.DebugContext(ctx, "directory fetched", "path", path, "entries", len(entries),
			"time_spent_ms", time.Since(before).Milliseconds())
		return nil, entries, nil
	}

	var entry ContentEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, nil, fmt.Errorf("decode entry %s: %w", path, err)
	}
	c.logger.DebugContext(ctx, "entry fetched", "path", path, "sha", entry.SHA, "size", entry.Size,
		"time_spent_ms", time.Since(before).Milliseconds())
	return &entry, nil, nil
}

// PutContents creates or replaces the file at path.
func (c *Client) PutContents(ctx context.Context, owner, repo, path string, req *PutRequest) (*CommitResponse, error) {
	c.logger.DebugContext(ctx, "putting contents", "owner", owner, "repo", repo, "path", path,
		"branch", req.Branch, "replace", req.SHA != "")

	var resp CommitResponse
	if err := c.do(ctx, "PUT", contentsPath(owner, repo, path), req, &resp); err != nil {
		return nil, fmt.Errorf("put contents %s/%s/%s: %w", owner, repo, path, err)
	}
	return &resp, nil
}

// DeleteContents deletes the file at path.
func (c *Client) DeleteContents(ctx context.Context, owner, repo, path string, req *DeleteRequest) (*CommitResponse, error) {
	c.logger.DebugContext(ctx, "deleting contents", "owner", owner, "repo", repo, "path", path,
		"branch", req.Branch)

	var resp CommitResponse
	if err := c.do(ctx, "DELETE", contentsPath(owner, repo, path), req, &resp); err != nil {
		return nil, fmt.Errorf("delete contents %s/%s/%s: %w", owner, repo, path, err)
	}
	return &resp, nil
}

// GetRepository fetches repository metadata (used to resolve the default branch).
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	c.logger.DebugContext(ctx, "fetching repository", "owner", owner, "repo", repo)

	var repository Repository
	if err := c.do(ctx, "GET", "/repos/"+owner+"/"+repo, nil, &repository); err != nil {
		return nil, fmt.Errorf("get repository %s/%s: %w", owner, repo, err)
	}
	return &repository, nil
}
