package repo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// githubContentResponse is the subset of the GitHub contents API payload
// needed to decode one file.
type githubContentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	Type     string `json:"type"`
}

// FetchFile returns the contents of a single file, used to pin a file's
// full text into a prompt. Remote hosts are queried through their REST
// APIs so no clone is required.
func (a *Acquirer) FetchFile(ctx context.Context, desc *Descriptor, filePath string) (string, error) {
	filePath = strings.TrimPrefix(strings.TrimSpace(filePath), "/")
	if filePath == "" {
		return "", &AcquisitionError{Op: "fetch file", Err: fmt.Errorf("file path is empty")}
	}

	switch desc.Kind {
	case HostLocal:
		data, err := os.ReadFile(filepath.Join(desc.Locator, filepath.FromSlash(filePath)))
		if err != nil {
			return "", &AcquisitionError{Op: "fetch local file", Err: err}
		}
		return string(data), nil
	case HostGitHub:
		return a.fetchGitHub(ctx, desc, filePath)
	case HostGitLab:
		return a.fetchGitLab(ctx, desc, filePath)
	case HostBitbucket:
		return a.fetchBitbucket(ctx, desc, filePath)
	default:
		return "", &AcquisitionError{Op: "fetch file", Err: fmt.Errorf("unsupported host kind %q", desc.Kind)}
	}
}

func (a *Acquirer) fetchGitHub(ctx context.Context, desc *Descriptor, filePath string) (string, error) {
	base, err := apiBase(desc, "api.github.com", "/api/v3")
	if err != nil {
		return "", &AcquisitionError{Op: "fetch file", Err: err}
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", base, desc.Owner(), desc.Name(), escapePath(filePath))
	headers := map[string]string{"Accept": "application/vnd.github.v3+json"}
	if desc.Credential != "" {
		headers["Authorization"] = "token " + desc.Credential
	}

	body, err := a.get(ctx, desc, endpoint, headers)
	if err != nil {
		return "", err
	}

	var content githubContentResponse
	if err := json.Unmarshal(body, &content); err != nil {
		return "", &AcquisitionError{Op: "fetch file", Err: fmt.Errorf("decoding contents response: %w", err)}
	}
	if content.Type != "" && content.Type != "file" {
		return "", &AcquisitionError{Op: "fetch file", Err: fmt.Errorf("%q is a %s, not a file", filePath, content.Type)}
	}
	if content.Encoding != "base64" {
		return content.Content, nil
	}

	// GitHub wraps base64 payloads at 60 columns.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return "", &AcquisitionError{Op: "fetch file", Err: fmt.Errorf("decoding file content: %w", err)}
	}
	return string(decoded), nil
}

func (a *Acquirer) fetchGitLab(ctx context.Context, desc *Descriptor, filePath string) (string, error) {
	base, err := apiBase(desc, "", "/api/v4")
	if err != nil {
		return "", &AcquisitionError{Op: "fetch file", Err: err}
	}

	project := url.PathEscape(desc.Owner() + "/" + desc.Name())
	endpoint := fmt.Sprintf("%s/projects/%s/repository/files/%s/raw?ref=HEAD", base, project, url.PathEscape(filePath))
	headers := map[string]string{}
	if desc.Credential != "" {
		headers["PRIVATE-TOKEN"] = desc.Credential
	}

	body, err := a.get(ctx, desc, endpoint, headers)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (a *Acquirer) fetchBitbucket(ctx context.Context, desc *Descriptor, filePath string) (string, error) {
	base, err := apiBase(desc, "api.bitbucket.org", "")
	if err != nil {
		return "", &AcquisitionError{Op: "fetch file", Err: err}
	}

	endpoint := fmt.Sprintf("%s/2.0/repositories/%s/%s/src/HEAD/%s", base, desc.Owner(), desc.Name(), escapePath(filePath))
	headers := map[string]string{}
	if desc.Credential != "" {
		headers["Authorization"] = "Bearer " + desc.Credential
	}

	body, err := a.get(ctx, desc, endpoint, headers)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// apiBase derives the REST API root from the locator. Known public hosts
// map to their dedicated API domains; self-hosted instances serve the API
// from the repository host itself under apiPrefix.
func apiBase(desc *Descriptor, publicAPIHost, apiPrefix string) (string, error) {
	u, err := url.Parse(desc.Locator)
	if err != nil {
		return "", fmt.Errorf("invalid repository URL: %w", err)
	}

	switch u.Host {
	case "github.com", "www.github.com":
		return "https://api.github.com", nil
	case "bitbucket.org", "www.bitbucket.org":
		return "https://api.bitbucket.org", nil
	}
	if publicAPIHost != "" && u.Host == publicAPIHost {
		return u.Scheme + "://" + u.Host, nil
	}
	return u.Scheme + "://" + u.Host + apiPrefix, nil
}

func (a *Acquirer) get(ctx context.Context, desc *Descriptor, endpoint string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &AcquisitionError{Op: "fetch file", Err: fmt.Errorf("building request: %w", err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if resp == nil {
		return nil, &AcquisitionError{
			Op:  "fetch file",
			Err: fmt.Errorf("%s", Scrub(err.Error(), desc.Credential)),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AcquisitionError{Op: "fetch file", Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(body))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return nil, &AcquisitionError{
			Op:  "fetch file",
			Err: fmt.Errorf("host API returned HTTP %d: %s", resp.StatusCode, Scrub(detail, desc.Credential)),
		}
	}
	return body, nil
}

// escapePath escapes each path segment while keeping separators intact.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
