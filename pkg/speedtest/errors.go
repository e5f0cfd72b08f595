package speedtest

import "errors"

var (
	// ErrInvalidPolicy indicates an unknown reporting policy.
	ErrInvalidPolicy = errors.New("policy must be p90 or median")
	// ErrNoDirection indicates both DownloadOnly and UploadOnly were set.
	ErrNoDirection = errors.New("download_only and upload_only are mutually exclusive")
)
