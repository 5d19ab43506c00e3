package hub

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Generic download utilities.

// retry runs op with exponential backoff, until it succeeds, returns a permanent error or the
// retries are exhausted.
func (r *Repo) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	if r.RetryInterval > 0 {
		policy.InitialInterval = r.RetryInterval
	}
	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := op()
		if err != nil {
			klog.V(1).Infof("hub: request for %q failed: %v", r, err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, r.MaxRetries), ctx))
}

// get issues an authorized GET request. Client errors (4xx) are permanent, other failures are
// retried by the caller.
func (r *Repo) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(errors.Wrapf(err, "failed to create request for %q", url))
	}
	if r.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.authToken)
	}
	client := r.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request to %q failed", url)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	resp.Body.Close()
	err = errors.Errorf("request to %q returned status %s", url, resp.Status)
	if resp.StatusCode == http.StatusNotFound {
		return nil, backoff.Permanent(errors.Wrapf(ErrFileNotFound, "request to %q", url))
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return nil, backoff.Permanent(err)
	}
	return nil, err
}

// download url into the (already created) file at tmpPath, retrying on transient failures.
func (r *Repo) download(ctx context.Context, url, tmpPath string) error {
	return r.retry(ctx, func() error {
		resp, err := r.get(ctx, url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		f, err := os.Create(tmpPath)
		if err != nil {
			return backoff.Permanent(errors.Wrapf(err, "creating temporary file for download in %q", tmpPath))
		}
		_, err = io.Copy(f, resp.Body)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		return errors.Wrapf(err, "failed to download %q", url)
	})
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// lockedDownload url to the given filePath.
//
// If filePath exists and forceDownload is false, it is assumed to already have been correctly downloaded.
//
// It downloads the file to filePath+".downloading" and then atomically moves it to filePath.
// A filePath+".lock" file coordinates multiple processes trying to download the same file at the same time.
func (r *Repo) lockedDownload(ctx context.Context, url, filePath string, forceDownload bool) error {
	if fileExists(filePath) {
		if !forceDownload {
			return nil
		}
		if err := os.Remove(filePath); err != nil {
			return errors.Wrapf(err, "failed to remove %q while force-downloading %q", filePath, url)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), DefaultDirCreationPerm); err != nil {
		return errors.Wrapf(err, "failed to create directory for file %q", filePath)
	}

	lockPath := filePath + ".lock"
	var mainErr error
	errLock := execOnFileLock(ctx, lockPath, func() {
		if fileExists(filePath) {
			// Downloaded concurrently by another process or goroutine.
			return
		}
		tmpPath := filePath + ".downloading"
		mainErr = r.download(ctx, url, tmpPath)
		if mainErr != nil {
			if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
				klog.Warningf("failed removing temporary file %q: %v", tmpPath, err)
			}
			mainErr = errors.WithMessagef(mainErr, "while downloading %q to %q", url, tmpPath)
			return
		}
		if err := os.Rename(tmpPath, filePath); err != nil {
			mainErr = errors.Wrapf(err, "failed to move downloaded file %q to %q", tmpPath, filePath)
			return
		}
		klog.V(1).Infof("hub: downloaded %q", filePath)
		if err := os.Remove(lockPath); err != nil {
			klog.Warningf("error removing lock file %q: %v", lockPath, err)
		}
	})
	if mainErr != nil {
		return mainErr
	}
	if errLock != nil {
		return errors.WithMessagef(errLock, "while locking %q to download %q", lockPath, url)
	}
	return nil
}

// execOnFileLock locks lockPath (creating it if needed) and executes fn.
// If the lock is held elsewhere, it polls every 1 to 2 seconds (randomly) until it acquires it or
// ctx is cancelled.
func execOnFileLock(ctx context.Context, lockPath string, fn func()) (err error) {
	fileLock := flock.New(lockPath)
	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "while trying to lock %q", lockPath)
		}
		if locked {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond * time.Duration(1000+rand.IntN(1000))):
		}
	}

	// Unlock even if fn panics.
	defer func() {
		unlockErr := fileLock.Unlock()
		if unlockErr != nil {
			if err == nil {
				err = errors.Wrapf(unlockErr, "unlocking file %q", lockPath)
			} else {
				klog.Errorf("error unlocking file %q: %v", lockPath, unlockErr)
			}
		}
	}()
	fn()
	return
}
