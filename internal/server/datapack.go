package server

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kartoza/funding-explorer/internal/config"
	"github.com/kartoza/funding-explorer/internal/explorer"
	"github.com/kartoza/funding-explorer/internal/httputil"
	"github.com/kartoza/funding-explorer/internal/models"
)

// handleDatasetStatus returns what is loaded and where it came from
func (s *Server) handleDatasetStatus(w http.ResponseWriter, r *http.Request) {
	resp := models.DatasetStatusResponse{Status: s.svc.Status()}

	if path, err := config.SettingsPath(); err == nil {
		resp.SettingsPath = path
	}
	settings, err := config.LoadSettings()
	if err != nil {
		log.Printf("Warning: could not load settings: %v", err)
	} else {
		resp.SavedDir = settings.DatasetDir
	}

	httputil.RespondJSON(w, http.StatusOK, resp)
}

// handleDatasetReload drops the cached tables and loads them again
func (s *Server) handleDatasetReload(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reload(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, explorer.ErrDatasetUnavailable) {
			status = http.StatusServiceUnavailable
		}
		httputil.RespondError(w, status, err.Error())
		return
	}
	httputil.RespondJSON(w, http.StatusOK, s.svc.Status())
}

// handleDatasetInstall registers a dataset directory or extracts a dataset
// pack zip, switches to it and remembers it in the settings
func (s *Server) handleDatasetInstall(w http.ResponseWriter, r *http.Request) {
	var req models.DatasetInstallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Path == "" {
		httputil.RespondError(w, http.StatusBadRequest, "path is required")
		return
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, fmt.Sprintf("file not found: %s", req.Path))
		return
	}

	datasetDir := req.Path
	if !info.IsDir() {
		if !strings.HasSuffix(strings.ToLower(req.Path), ".zip") {
			httputil.RespondError(w, http.StatusBadRequest, "path must be a directory or a .zip archive")
			return
		}

		storeDir, err := config.DataStoreDir()
		if err != nil {
			httputil.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("could not determine data directory: %v", err))
			return
		}
		extractDir := filepath.Join(storeDir, "datasets")
		if err := os.MkdirAll(extractDir, 0o755); err != nil {
			httputil.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("could not create directory: %v", err))
			return
		}

		datasetDir, err = extractDatapack(req.Path, extractDir)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, fmt.Sprintf("extraction failed: %v", err))
			return
		}
	}

	if err := s.svc.UseDataDir(r.Context(), datasetDir); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, fmt.Sprintf("invalid dataset: %v", err))
		return
	}

	settings, err := config.LoadSettings()
	if err != nil {
		log.Printf("Warning: could not load settings, overwriting: %v", err)
	}
	settings.DatasetDir = datasetDir
	if err := config.SaveSettings(settings); err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("could not save settings: %v", err))
		return
	}

	log.Printf("Dataset installed: %s", datasetDir)
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"installed": true,
		"path":      datasetDir,
		"status":    s.svc.Status(),
	})
}

// extractDatapack unzips a dataset pack into targetDir and returns the
// directory holding its tables. Archives with a single top-level directory
// extract to that directory; flat archives get one named after the zip.
func extractDatapack(zipPath, targetDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("could not open zip: %w", err)
	}
	defer r.Close()

	if len(r.File) == 0 {
		return "", fmt.Errorf("empty zip archive")
	}

	root := commonRoot(r.File)
	packDir := filepath.Join(targetDir, root)
	base := targetDir
	if root == "" {
		name := strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
		packDir = filepath.Join(targetDir, name)
		base = packDir
	}
	if !within(targetDir, packDir) {
		return "", fmt.Errorf("illegal pack directory in zip: %q", root)
	}

	// Sanitize every path to prevent zip slip before touching the disk
	dests := make([]string, len(r.File))
	for i, f := range r.File {
		dests[i] = filepath.Join(base, f.Name)
		if dests[i] != packDir && !within(packDir, dests[i]) {
			return "", fmt.Errorf("illegal file path in zip: %s", f.Name)
		}
	}

	// Remove existing extraction if present
	if err := os.RemoveAll(packDir); err != nil {
		return "", fmt.Errorf("could not replace %s: %w", packDir, err)
	}

	for i, f := range r.File {
		if f.FileInfo().IsDir() {
			os.MkdirAll(dests[i], 0o755)
			continue
		}

		if err := extractFile(f, dests[i]); err != nil {
			return "", err
		}
	}

	return packDir, nil
}

// within reports whether path lies strictly below dir
func within(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

// commonRoot returns the top-level directory shared by every entry, or ""
func commonRoot(files []*zip.File) string {
	var root string
	for _, f := range files {
		parts := strings.SplitN(f.Name, "/", 2)
		if len(parts) < 2 {
			return ""
		}
		if parts[0] == "." || parts[0] == ".." {
			return ""
		}
		if root == "" {
			root = parts[0]
		} else if parts[0] != root {
			return ""
		}
	}
	return root
}

func extractFile(f *zip.File, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("could not create directory: %w", err)
	}

	outFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer outFile.Close()

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("could not open zip entry: %w", err)
	}
	defer rc.Close()

	if _, err := io.Copy(outFile, rc); err != nil {
		return fmt.Errorf("could not extract file: %w", err)
	}
	return nil
}
