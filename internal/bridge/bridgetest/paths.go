package bridgetest

import "strings"

func matchPrefix(path, prefix string) bool {
	return strings.HasPrefix(path, prefix)
}

func matchSuffix(path, suffix string) bool {
	return strings.HasSuffix(path, suffix)
}

func trimPrefix(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

// bucketIDFromFilesPath extracts {id} from "/buckets/{id}/files" or
// "/buckets/{id}/tokens".
func bucketIDFromFilesPath(path string) string {
	rest := strings.TrimPrefix(path, "/buckets/")
	parts := strings.SplitN(rest, "/", 2)
	return parts[0]
}

// bucketIDFromFilePath and fileIDFromFilePath split
// "/buckets/{id}/files/{file}".
func bucketIDFromFilePath(path string) string {
	rest := strings.TrimPrefix(path, "/buckets/")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}

func fileIDFromFilePath(path string) string {
	rest := strings.TrimPrefix(path, "/buckets/")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) == 3 {
		return parts[2]
	}
	return ""
}
