// Package hub resolves the files of a model or embedding source, either a local directory or a
// remote repository laid out like the HuggingFace Hub ({endpoint}/{id}/resolve/{revision}/{file}).
//
// Remote files are downloaded once into a local cache, coordinating concurrent processes with
// file locks, and then used from there.
//
// Example:
//
//	repo := hub.New("bert-base-chinese").WithAuth(os.Getenv("HF_TOKEN"))
//	vocabPath, err := repo.DownloadFile("vocab.txt")
package hub

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// DefaultEndpoint is used by New, unless overwritten by the HF_ENDPOINT environment variable.
	DefaultEndpoint = "https://huggingface.co"

	// DefaultRevision of remote repositories.
	DefaultRevision = "main"

	// DefaultDirCreationPerm is used when creating cache directories.
	DefaultDirCreationPerm = os.FileMode(0755)

	// ErrFileNotFound is returned when a repository doesn't contain the requested file.
	ErrFileNotFound = errors.New("file not found in repository")
)

// DefaultCacheDir returns the cache directory for downloaded files: $SEQLABEL_CACHE if set,
// otherwise "seqlabel" under the user cache directory.
func DefaultCacheDir() string {
	if dir := os.Getenv("SEQLABEL_CACHE"); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "seqlabel")
}

// Repo is a source of files: a local directory or a remote repository.
//
// Configure it with the With* methods before use. It is safe for concurrent use after that.
type Repo struct {
	// ID of a remote repository, e.g. "bert-base-chinese". Empty for local repositories.
	ID string

	// Dir of a local repository.
	Dir string

	Endpoint, Revision, CacheDir string

	// MaxRetries of failed remote requests, and the initial interval between them.
	MaxRetries    uint64
	RetryInterval time.Duration

	authToken string
	client    *http.Client

	muList    sync.Mutex
	fileNames []string
}

// New creates a Repo for the remote repository id.
func New(id string) *Repo {
	endpoint := DefaultEndpoint
	if env := os.Getenv("HF_ENDPOINT"); env != "" {
		endpoint = env
	}
	return &Repo{
		ID:            id,
		Endpoint:      strings.TrimSuffix(endpoint, "/"),
		Revision:      DefaultRevision,
		CacheDir:      DefaultCacheDir(),
		MaxRetries:    3,
		RetryInterval: 500 * time.Millisecond,
		client:        http.DefaultClient,
	}
}

// NewLocal creates a Repo serving the files under dir.
func NewLocal(dir string) *Repo {
	return &Repo{Dir: dir}
}

// IsLocal returns whether the repository is a local directory.
func (r *Repo) IsLocal() bool {
	return r.ID == ""
}

// String implements fmt.Stringer.
func (r *Repo) String() string {
	if r.IsLocal() {
		return r.Dir
	}
	return r.ID
}

// WithAuth sets the token sent as bearer authorization to the remote endpoint.
func (r *Repo) WithAuth(token string) *Repo {
	r.authToken = token
	return r
}

// WithEndpoint sets the base URL of the remote hub.
func (r *Repo) WithEndpoint(endpoint string) *Repo {
	r.Endpoint = strings.TrimSuffix(endpoint, "/")
	return r
}

// WithRevision sets the revision (branch, tag or commit) of the remote repository.
func (r *Repo) WithRevision(revision string) *Repo {
	r.Revision = revision
	return r
}

// WithCacheDir sets where remote files are downloaded to.
func (r *Repo) WithCacheDir(dir string) *Repo {
	r.CacheDir = dir
	return r
}

// WithHTTPClient sets the client used for remote requests.
func (r *Repo) WithHTTPClient(client *http.Client) *Repo {
	r.client = client
	return r
}

// WithRetries configures how failed remote requests are retried.
func (r *Repo) WithRetries(maxRetries uint64, interval time.Duration) *Repo {
	r.MaxRetries = maxRetries
	r.RetryInterval = interval
	return r
}

// repoCacheDir is where files of this remote repository (and revision) are stored.
func (r *Repo) repoCacheDir() string {
	name := strings.ReplaceAll(r.ID, "/", "--")
	return filepath.Join(r.CacheDir, name, r.Revision)
}

// IterFileNames iterates over the names of the files in the repository, as slash separated paths.
func (r *Repo) IterFileNames() func(yield func(string, error) bool) {
	return func(yield func(string, error) bool) {
		names, err := r.listFiles(context.Background())
		if err != nil {
			yield("", err)
			return
		}
		for _, name := range names {
			if !yield(name, nil) {
				return
			}
		}
	}
}

// FileNames returns the sorted names of the files in the repository.
func (r *Repo) FileNames() ([]string, error) {
	names, err := r.listFiles(context.Background())
	if err != nil {
		return nil, err
	}
	return slices.Clone(names), nil
}

// HasFile returns whether the repository contains fileName.
func (r *Repo) HasFile(fileName string) (bool, error) {
	names, err := r.listFiles(context.Background())
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(names, fileName)
	return found, nil
}

func (r *Repo) listFiles(ctx context.Context) ([]string, error) {
	r.muList.Lock()
	defer r.muList.Unlock()
	if r.fileNames != nil {
		return r.fileNames, nil
	}
	var names []string
	var err error
	if r.IsLocal() {
		names, err = r.listLocal()
	} else {
		names, err = r.listRemote(ctx)
	}
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	r.fileNames = names
	return names, nil
}

func (r *Repo) listLocal() ([]string, error) {
	var names []string
	err := filepath.WalkDir(r.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != r.Dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(r.Dir, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list files of %q", r.Dir)
	}
	return names, nil
}

// modelInfo is the subset of the hub's model info response used to list files.
type modelInfo struct {
	Siblings []struct {
		Name string `json:"rfilename"`
	} `json:"siblings"`
}

func (r *Repo) listRemote(ctx context.Context) ([]string, error) {
	infoURL, err := url.JoinPath(r.Endpoint, "api", "models", r.ID, "revision", r.Revision)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid endpoint %q", r.Endpoint)
	}
	var info modelInfo
	err = r.retry(ctx, func() error {
		resp, err := r.get(ctx, infoURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		info = modelInfo{}
		return errors.Wrapf(json.NewDecoder(resp.Body).Decode(&info), "failed to parse file list of %q", r.ID)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "while listing files of %q", r.ID)
	}
	names := make([]string, 0, len(info.Siblings))
	for _, s := range info.Siblings {
		names = append(names, s.Name)
	}
	klog.V(1).Infof("hub: %q has %d files", r.ID, len(names))
	return names, nil
}

// DownloadFile returns the local path of fileName, downloading it first for remote repositories.
func (r *Repo) DownloadFile(fileName string) (string, error) {
	return r.DownloadFileContext(context.Background(), fileName)
}

// DownloadFileContext is like DownloadFile, but the download can be cancelled with ctx.
func (r *Repo) DownloadFileContext(ctx context.Context, fileName string) (string, error) {
	cleanName := path.Clean("/" + fileName)[1:]
	if cleanName == "" || cleanName != fileName {
		return "", errors.Errorf("invalid file name %q", fileName)
	}
	if r.IsLocal() {
		localPath := filepath.Join(r.Dir, filepath.FromSlash(fileName))
		if _, err := os.Stat(localPath); err != nil {
			if os.IsNotExist(err) {
				return "", errors.Wrapf(ErrFileNotFound, "%q in %q", fileName, r.Dir)
			}
			return "", errors.Wrapf(err, "failed to stat %q", localPath)
		}
		return localPath, nil
	}

	localPath := filepath.Join(r.repoCacheDir(), filepath.FromSlash(fileName))
	fileURL, err := url.JoinPath(r.Endpoint, r.ID, "resolve", r.Revision, fileName)
	if err != nil {
		return "", errors.Wrapf(err, "invalid endpoint %q", r.Endpoint)
	}
	if err := r.lockedDownload(ctx, fileURL, localPath, false); err != nil {
		return "", err
	}
	return localPath, nil
}
