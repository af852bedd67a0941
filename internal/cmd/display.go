package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fclairamb/ghsync/internal/github"
	"github.com/fclairamb/ghsync/internal/mirror"
	"github.com/fclairamb/ghsync/internal/store"
)

// displayEntry displays the metadata of a single content entry.
//
//nolint:forbidigo // CLI user output function
func displayEntry(entry *github.ContentEntry) {
	fmt.Printf("Path:     %s\n", entry.Path)
	fmt.Printf("Type:     %s\n", entry.Type)
	fmt.Printf("SHA:      %s\n", entry.SHA)
	fmt.Printf("Size:     %d\n", entry.Size)
	if entry.HTMLURL != "" {
		fmt.Printf("HTML URL: %s\n", entry.HTMLURL)
	}
	if entry.DownloadURL != "" {
		fmt.Printf("Raw URL:  %s\n", entry.DownloadURL)
	}
}

// displayContent writes raw file content to stdout.
//
//nolint:forbidigo // CLI user output function
func displayContent(data []byte) {
	_, _ = os.Stdout.Write(data)
}

// displayCommit displays the result of a single mutation.
//
//nolint:forbidigo // CLI user output function
func displayCommit(verb, path string, resp *github.CommitResponse) {
	commit := ""
	if resp != nil && resp.Commit != nil {
		commit = resp.Commit.SHA
	}
	if commit != "" {
		fmt.Printf("%s %s (commit %s)\n", verb, path, commit)
	} else {
		fmt.Printf("%s %s\n", verb, path)
	}
}

// displayEntryList displays the members of a directory listing.
//
//nolint:forbidigo // CLI user output function
func displayEntryList(entries []github.ContentEntry, long bool) {
	for _, entry := range entries {
		name := entry.Name
		if entry.IsDir() {
			name += "/"
		}

		if long {
			fmt.Printf("%s  %8d  %s\n", entry.SHA, entry.Size, name)
		} else {
			fmt.Println(name)
		}
	}
}

// displayURL prints a raw download URL.
//
//nolint:forbidigo // CLI user output function
func displayURL(url string) {
	fmt.Println(url)
}

// displayBatchOutcomes displays the per-member results of a directory-scope
// operation, successes first line by line, then the failures.
//
//nolint:forbidigo // CLI user output function
func displayBatchOutcomes(verb string, outcomes []store.BatchOutcome) {
	succeeded := 0
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			succeeded++
		}
	}

	fmt.Printf("%s %d/%d files\n", verb, succeeded, len(outcomes))

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			fmt.Printf("  FAILED %s: %v\n", outcome.Path, outcome.Err)
		}
	}
}

// displayMirrorResult displays the summary of a mirror sync run.
//
//nolint:forbidigo // CLI user output function
func displayMirrorResult(result *mirror.Result) {
	fmt.Printf("\nMirror Results:\n")
	fmt.Printf("  Written: %d\n", result.Written)
	fmt.Printf("  Deleted: %d\n", result.Deleted)
	fmt.Printf("  Skipped: %d\n", result.Skipped)
	if result.Failed > 0 {
		fmt.Printf("  Failed:  %d\n", result.Failed)
	}
}

// displayRemoteConfig displays the remote git configuration.
//
//nolint:forbidigo // CLI user output function
func displayRemoteConfig(cfg *store.RemoteConfig) {
	fmt.Println("Remote Git Configuration")
	fmt.Println()

	// Show storage mode
	effectiveMode := cfg.EffectiveStorageMode()
	if cfg.Storage == "" {
		fmt.Printf("Storage:  %s (auto-detected)\n", effectiveMode)
	} else {
		fmt.Printf("Storage:  %s\n", effectiveMode)
	}

	if effectiveMode == store.StorageModeLocal {
		fmt.Println("\nRemote operations disabled (local-only mode)")
		if cfg.URL != "" {
			fmt.Printf("URL:      %s (ignored due to GHS_STORAGE=local)\n", cfg.URL)
		}
		return
	}

	if cfg.URL == "" {
		fmt.Println("\nRemote: not configured (set GHS_GIT_URL to enable)")
		return
	}

	fmt.Printf("URL:      %s\n", cfg.URL)
	if cfg.IsSSH() {
		fmt.Println("Auth:     SSH (using ssh-agent)")
	} else {
		if cfg.Password != "" {
			fmt.Println("Auth:     HTTPS (token configured)")
		} else {
			fmt.Println("Auth:     HTTPS (WARNING: GHS_GIT_PASS not set)")
		}
	}
	fmt.Printf("Branch:   %s\n", cfg.Branch)
	fmt.Printf("User:     %s\n", cfg.User)
	fmt.Printf("Email:    %s\n", cfg.Email)

	// Show GHS_DIR if set
	ghsDir := os.Getenv("GHS_DIR")
	if ghsDir != "" {
		fmt.Printf("Dir:      %s (from GHS_DIR)\n", ghsDir)
	}
}

// displayConnectionTest tests the connection and displays the result.
//
//nolint:forbidigo // CLI user output function
func displayConnectionTest(ctx context.Context, cfg *store.RemoteConfig) error {
	fmt.Printf("Testing connection to %s...\n", cfg.URL)

	if testErr := cfg.TestConnection(ctx); testErr != nil {
		return fmt.Errorf("connection test failed: %w", testErr)
	}

	fmt.Println("Connection successful!")
	return nil
}
