package tasks

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
	"gopkg.in/yaml.v3"
)

type typingSpec struct {
	Condition  string `yaml:"if,omitempty"`
	Rejections string `yaml:"ifNot,omitempty"`
	URL        string `yaml:"url"`
	Dest       string `yaml:"dest"`
	Sha256     string `yaml:"sha256"`
	Strip      int    `yaml:"strip"`
}

type typingsManifest struct {
	Vars map[string]string     `yaml:"vars"`
	Deps map[string]typingSpec `yaml:"deps"`
}

func getProgressBar(length int64, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		// progress bars garble CI logs
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

func loadTypingsManifest(ctx context.Context, dir string) (typingsManifest, map[string]string, error) {
	var manifest typingsManifest

	manifestPath, err := findConfig(ctx, dir, "typings.yml")
	if err != nil {
		return manifest, nil, err
	}

	data, err := ioutil.ReadFile(manifestPath)
	if err != nil {
		return manifest, nil, eris.Wrapf(err, "Could not open file %s.", manifestPath)
	}

	err = yaml.Unmarshal(data, &manifest)
	if err != nil {
		return manifest, nil, eris.Wrapf(err, "Failed to parse %s.", manifestPath)
	}

	if manifest.Vars == nil {
		manifest.Vars = map[string]string{}
	}

	stamps := map[string]string{}
	stampPath := filepath.Join(dir, "typings", ".stamps.json")
	stampData, err := ioutil.ReadFile(stampPath)
	if err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			return manifest, nil, eris.Wrapf(err, "Failed to read stamps file %s.", stampPath)
		}
	} else {
		err = json.Unmarshal(stampData, &stamps)
		if err != nil {
			return manifest, nil, eris.Wrapf(err, "Failed to parse JSON file %s.", stampPath)
		}
	}

	return manifest, stamps, nil
}

var placeholderPattern = regexp.MustCompile(`\{([A-Z0-9_]+)\}`)

// evalTypingConditions substitutes the {VAR} placeholders in the package URL
// and checks the package's if / ifNot conditions against the variable set.
// The result is false if the package should be skipped.
func evalTypingConditions(meta *typingSpec, vars map[string]string) bool {
	meta.URL = placeholderPattern.ReplaceAllStringFunc(meta.URL, func(varName string) string {
		return vars[varName[1:len(varName)-1]]
	})

	for _, condition := range strings.Split(meta.Condition, ",") {
		if condition == "" {
			continue
		}

		value, ok := vars[strings.TrimSpace(condition)]
		if !ok || value == "" {
			return false
		}
	}

	for _, condition := range strings.Split(meta.Rejections, ",") {
		if condition == "" {
			continue
		}

		value, ok := vars[strings.TrimSpace(condition)]
		if ok && value != "" {
			return false
		}
	}

	return true
}

func fetchTypings(ctx context.Context, dir string, manifest typingsManifest, stamps map[string]string) error {
	client := &http.Client{
		Timeout: time.Minute * 30,
	}

	vars := manifest.Vars
	vars[runtime.GOARCH] = "true"
	vars[runtime.GOOS] = "true"
	if os.Getenv("CI") == "true" {
		vars["ci"] = "true"
	}

	for name, meta := range manifest.Deps {
		if !evalTypingConditions(&meta, vars) {
			log(ctx).Debug().Msgf("Skipping %s, conditions not met", name)
			continue
		}

		destPath := filepath.Join(dir, "typings", meta.Dest)
		destInfo, err := os.Stat(destPath)
		destExists := err == nil

		stampToken := meta.URL + "#" + meta.Sha256
		if stamp, ok := stamps[name]; ok && stampToken == stamp && destExists {
			continue
		}

		if runDryRun(ctx) {
			log(ctx).Info().Msgf("Would fetch %s from %s", name, meta.URL)
			continue
		}

		log(ctx).Info().Msgf("%s:  %s", name, meta.URL)
		if meta.Sha256 == "" {
			return eris.Errorf("Typings package %s doesn't have a checksum", name)
		}

		tmpPath := filepath.Join(dir, ".typings_dl.tmp")
		err = downloadFile(ctx, client, meta.URL, tmpPath)
		if err != nil {
			os.Remove(tmpPath)
			return err
		}

		err = verifyAndExtract(tmpPath, destPath, destExists, destInfo, meta)
		os.Remove(tmpPath)
		if err != nil {
			return err
		}

		stamps[name] = stampToken
	}

	return nil
}

func downloadFile(ctx context.Context, client *http.Client, url, tmpPath string) error {
	handle, err := os.Create(tmpPath)
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", tmpPath)
	}
	defer handle.Close()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return eris.Wrapf(err, "Failed to prepare request for %s", url)
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "Failed to start download for %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("Download of %s failed with status %s", url, resp.Status)
	}

	bar := getProgressBar(resp.ContentLength, "     download")
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if err != nil && n < 1 {
			if err == io.EOF {
				break
			}
			return eris.Wrapf(err, "Failed during download of %s", url)
		}

		_, err = handle.Write(buf[:n])
		if err != nil {
			return eris.Wrapf(err, "Failed to write download to file %s", tmpPath)
		}

		bar.Write(buf[:n])
	}
	bar.Finish()

	return handle.Close()
}

func verifyAndExtract(tmpPath, destPath string, destExists bool, destInfo os.FileInfo, meta typingSpec) error {
	handle, err := os.Open(tmpPath)
	if err != nil {
		return eris.Wrapf(err, "Failed to open %s", tmpPath)
	}
	defer handle.Close()

	hash := sha256.New()
	_, err = io.Copy(hash, handle)
	if err != nil {
		return eris.Wrapf(err, "Failed to calculate checksum for %s", meta.URL)
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	if digest != meta.Sha256 {
		return eris.Errorf("Checksum check failed for %s: got %s, expected %s", meta.URL, digest, meta.Sha256)
	}

	if destExists {
		if destInfo.IsDir() {
			err = os.RemoveAll(destPath)
		} else {
			err = os.Remove(destPath)
		}
		if err != nil {
			return eris.Wrapf(err, "Failed to remove %s", destPath)
		}
	}

	extract, err := getExtractor(meta.URL)
	if err != nil {
		return err
	}

	_, err = handle.Seek(0, io.SeekStart)
	if err != nil {
		return eris.Wrapf(err, "Failed to rewind %s", tmpPath)
	}

	return extract(handle, destPath, meta)
}

type archiveExtractor func(*os.File, string, typingSpec) error

// openExtractorDest normalizes an archive entry path, strips the configured
// number of leading elements and opens the final destination for writing. A
// nil handle means the entry maps to the destination root and is skipped.
func openExtractorDest(destPath, item string, meta typingSpec) (*os.File, string, error) {
	pathParts := strings.Split(filepath.Clean(item), string(filepath.Separator))
	if len(pathParts) <= meta.Strip {
		return nil, "", nil
	}

	dest := filepath.Join(destPath, strings.Join(pathParts[meta.Strip:], string(filepath.Separator)))
	if dest == destPath {
		return nil, "", nil
	}

	destParent := filepath.Dir(dest)
	err := os.MkdirAll(destParent, os.FileMode(0770))
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create directory %s", destParent)
	}

	destHandle, err := os.Create(dest)
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create file %s", dest)
	}

	return destHandle, dest, nil
}

func getExtractor(url string) (archiveExtractor, error) {
	switch {
	case strings.HasSuffix(url, ".zip"):
		return extractZip, nil
	case strings.HasSuffix(url, ".tar.gz") || strings.HasSuffix(url, ".tgz"):
		return func(f *os.File, destPath string, meta typingSpec) error {
			reader, err := gzip.NewReader(f)
			if err != nil {
				return err
			}
			defer reader.Close()

			return extractTar(reader, destPath, meta)
		}, nil
	case strings.HasSuffix(url, ".tar.bz2"):
		return func(f *os.File, destPath string, meta typingSpec) error {
			return extractTar(bzip2.NewReader(f), destPath, meta)
		}, nil
	case strings.HasSuffix(url, ".tar.xz"):
		return func(f *os.File, destPath string, meta typingSpec) error {
			reader, err := xz.NewReader(f)
			if err != nil {
				return err
			}

			return extractTar(reader, destPath, meta)
		}, nil
	default:
		// everything else is treated as a single plain file
		return extractPlain, nil
	}
}

func extractPlain(f *os.File, destPath string, meta typingSpec) error {
	err := os.MkdirAll(filepath.Dir(destPath), os.FileMode(0770))
	if err != nil {
		return eris.Wrapf(err, "Failed to create directory %s", filepath.Dir(destPath))
	}

	destHandle, err := os.Create(destPath)
	if err != nil {
		return eris.Wrapf(err, "Failed to create file %s", destPath)
	}
	defer destHandle.Close()

	_, err = io.Copy(destHandle, f)
	if err != nil {
		return eris.Wrapf(err, "Failed to write %s", destPath)
	}

	return destHandle.Close()
}

func extractZip(f *os.File, destPath string, meta typingSpec) error {
	stat, err := f.Stat()
	if err != nil {
		return err
	}

	archive, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return err
	}

	for _, item := range archive.File {
		if strings.HasSuffix(item.Name, "/") {
			continue
		}

		destHandle, dest, err := openExtractorDest(destPath, item.Name, meta)
		if err != nil {
			return err
		}
		if destHandle == nil {
			continue
		}

		itemHandle, err := item.Open()
		if err != nil {
			destHandle.Close()
			return eris.Wrap(err, "Failed to open archive entry")
		}

		_, err = io.Copy(destHandle, itemHandle)
		itemHandle.Close()
		destHandle.Close()
		if err != nil {
			return eris.Wrapf(err, "Failed to write extracted file %s", dest)
		}
	}

	return nil
}

func extractTar(r io.Reader, destPath string, meta typingSpec) error {
	archive := tar.NewReader(r)

	for {
		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return eris.Wrap(err, "Failed to read archive entry")
		}

		if item.Typeflag != tar.TypeReg {
			continue
		}

		destHandle, dest, err := openExtractorDest(destPath, item.Name, meta)
		if err != nil {
			return err
		}
		if destHandle == nil {
			continue
		}

		_, err = io.Copy(destHandle, archive)
		destHandle.Close()
		if err != nil {
			return eris.Wrapf(err, "Failed to write extracted file %s", dest)
		}

		os.Chmod(dest, item.FileInfo().Mode())
	}

	return nil
}

// RegisterInit adds the init task which downloads the type definition
// packages listed in the typings.yml manifest into typings/. Checksums are
// mandatory; finished downloads are recorded in typings/.stamps.json so
// subsequent runs only fetch what changed.
func RegisterInit(reg *Registry, opts Options) error {
	if reg.Has("init") {
		return nil
	}

	return reg.RegisterTask(&Task{
		Name: "init",
		Desc: "Fetches the type definition packages",
		Action: func(ctx context.Context) error {
			manifest, stamps, err := loadTypingsManifest(ctx, opts.Dir)
			if err != nil {
				return err
			}

			if len(manifest.Deps) == 0 {
				log(ctx).Debug().Msg("No typings packages declared")
				return nil
			}

			fetchErr := fetchTypings(ctx, opts.Dir, manifest, stamps)

			// Record the packages that made it even if a later one failed;
			// the next run picks up from there.
			if !runDryRun(ctx) {
				stampPath := filepath.Join(opts.Dir, "typings", ".stamps.json")
				stampData, err := json.Marshal(stamps)
				if err == nil {
					err = os.MkdirAll(filepath.Dir(stampPath), os.FileMode(0770))
				}
				if err == nil {
					err = ioutil.WriteFile(stampPath, stampData, os.FileMode(0660))
				}
				if err != nil {
					log(ctx).Warn().Err(err).Msg("Failed to write stamps file")
				}
			}

			return fetchErr
		},
	})
}
