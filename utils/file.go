package utils

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	FILE_EXT_SHP = ".shp"
	FILE_EXT_JP2 = ".jp2"

	GRANULE_DIR  = "GRANULE"
	IMG_DATA_DIR = "IMG_DATA"
)

var (
	ErrNoBandFile = errors.New("no band file next to TCI")
	ErrNoTCIFile  = errors.New("no TCI file under GRANULE")

	shpSidecarExts = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}
)

func GetUniqSubDir(parentPath string) (path string, err error) {
	path = filepath.Join(parentPath, uuid.NewString())
	err = os.Mkdir(path, os.ModePerm)
	return
}

func GetFilenameWithoutExt(path string) (name string) {
	name = filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(path))
	return
}

// MoveShapefile moves a shapefile dataset (all sidecar files) into place.
func MoveShapefile(srcShp, dstShp string) (err error) {
	srcBase := strings.TrimSuffix(srcShp, FILE_EXT_SHP)
	dstBase := strings.TrimSuffix(dstShp, FILE_EXT_SHP)
	for _, ext := range shpSidecarExts {
		src := srcBase + ext
		if _, e := os.Stat(src); e != nil {
			continue
		}
		if err = moveFile(src, dstBase+ext); err != nil {
			return
		}
	}
	return
}

func moveFile(src, dst string) (err error) {
	if err = os.Rename(src, dst); err == nil {
		return
	}
	// scratch dir may sit on another volume
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return
	}
	if err = out.Close(); err != nil {
		return
	}
	return os.Remove(src)
}

// FindBandFromTCI locates the raster of a band code (e.g. "B04") sitting
// next to a true-color (TCI) product, following the Sentinel-2 naming
// convention. When several files match, the largest one wins.
func FindBandFromTCI(tci, bandCode string) (path string, err error) {
	dir := filepath.Dir(tci)
	hits, _ := filepath.Glob(filepath.Join(dir, "*_"+bandCode+"_*"+FILE_EXT_JP2))
	if len(hits) == 0 {
		hits, _ = filepath.Glob(filepath.Join(dir, "*"+bandCode+"*"+FILE_EXT_JP2))
	}
	if len(hits) == 0 {
		err = ErrNoBandFile
		return
	}
	sort.Slice(hits, func(i, j int) bool {
		return fileSize(hits[i]) > fileSize(hits[j])
	})
	path = hits[0]
	return
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// FindTCIFiles walks an extracted Sentinel-2 product for its TCI rasters:
// GRANULE/<granule>/IMG_DATA holds them either directly or under resolution
// subdirectories (R10m < R20m < R60m), in which case the finest one is used.
func FindTCIFiles(root string) (tciFiles []string, err error) {
	var granuleDirs []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, e error) error {
		if e != nil {
			return e
		}
		if d.IsDir() && d.Name() == GRANULE_DIR {
			granuleDirs = append(granuleDirs, path)
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return
	}
	for _, granuleDir := range granuleDirs {
		entries, e := os.ReadDir(granuleDir)
		if e != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			imgData := filepath.Join(granuleDir, entry.Name(), IMG_DATA_DIR)
			if _, e = os.Stat(imgData); e != nil {
				continue
			}
			if direct, _ := filepath.Glob(filepath.Join(imgData, "*TCI*"+FILE_EXT_JP2)); len(direct) > 0 {
				tciFiles = append(tciFiles, direct...)
				continue
			}
			resDirs, e := os.ReadDir(imgData)
			if e != nil {
				continue
			}
			var resNames []string
			for _, rd := range resDirs {
				if rd.IsDir() {
					resNames = append(resNames, rd.Name())
				}
			}
			if len(resNames) == 0 {
				continue
			}
			sort.Strings(resNames) // R10m sorts before R20m and R60m
			finest := filepath.Join(imgData, resNames[0])
			if hits, _ := filepath.Glob(filepath.Join(finest, "*TCI*"+FILE_EXT_JP2)); len(hits) > 0 {
				tciFiles = append(tciFiles, hits...)
			}
		}
	}
	if len(tciFiles) == 0 {
		err = ErrNoTCIFile
	}
	return
}
