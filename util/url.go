package util

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

var (
	ErrNoFilename = errors.New("cannot extract valid filename")
)

// FilenameFromURL returns the last element of the URL's path.
func FilenameFromURL(u *url.URL) (string, error) {
	if u == nil {
		return "", ErrNoFilename
	}
	p := strings.Trim(u.Path, "/")
	if p == "" {
		return "", ErrNoFilename
	}
	filename := path.Base(p)
	// Don't allow "filenames" that are just ".", "..", etc.
	if strings.ReplaceAll(filename, ".", "") == "" {
		return "", ErrNoFilename
	}
	return filename, nil
}

func FilenameFromURLString(s string) (string, error) {
	if parsedURL, err := url.Parse(s); err != nil {
		return "", err
	} else {
		return FilenameFromURL(parsedURL)
	}
}

// ExtensionFromURL returns the lower-cased file extension (with the dot) of the URL's filename, or fallback if it has
// none.
func ExtensionFromURL(s string, fallback string) string {
	filename, err := FilenameFromURLString(s)
	if err != nil {
		return fallback
	}
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || ext == "." {
		return fallback
	}
	return ext
}
