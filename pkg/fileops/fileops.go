// Package fileops provides filesystem operations commonly wired into
// processing workflows: checksums, file sizes, and directory listings.
// Each helper is available both as a plain function and as a prebuilt
// stepflow operation.
package fileops

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fieldworks/stepflow/pkg/api"
)

// FileInfo describes one file in a listing.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	MD5  string `json:"md5"`
}

// MD5Sum returns the hex-encoded MD5 checksum of the file contents.
func MD5Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FileSize returns the size of the file in bytes.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ListFiles walks dir and returns one FileInfo per regular file, with
// names relative to dir, sorted by name.
func ListFiles(dir string) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		size, err := FileSize(path)
		if err != nil {
			return err
		}

		sum, err := MD5Sum(path)
		if err != nil {
			return err
		}

		files = append(files, FileInfo{Name: rel, Size: size, MD5: sum})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// FilesTable renders a listing as a plain-text table for logs.
func FilesTable(files []FileInfo) string {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "Name\tSize\tMD5 Checksum")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", f.Name, f.Size, f.MD5)
	}
	_ = tw.Flush()

	return sb.String()
}

// ListFilesOperation returns an operation that lists the files under the
// directory bound to the "dir" parameter. It returns the listing as a
// []FileInfo and the total number of files.
func ListFilesOperation() api.Operation {
	return api.Operation{
		Name:   "list_files",
		Params: []string{"dir"},
		Call: func(ctx context.Context, args map[string]any) (any, error) {
			dir, ok := args["dir"].(string)
			if !ok {
				return nil, fmt.Errorf("list_files: dir is %T, want string", args["dir"])
			}

			files, err := ListFiles(dir)
			if err != nil {
				return nil, err
			}

			return []any{files, len(files)}, nil
		},
	}
}

// MD5SumOperation returns an operation that computes the checksum of the
// file bound to the "path" parameter.
func MD5SumOperation() api.Operation {
	return api.Operation{
		Name:   "md5sum",
		Params: []string{"path"},
		Call: func(ctx context.Context, args map[string]any) (any, error) {
			path, ok := args["path"].(string)
			if !ok {
				return nil, fmt.Errorf("md5sum: path is %T, want string", args["path"])
			}
			return MD5Sum(path)
		},
	}
}
