package utils

import (
	"log"
	"os"

	"github.com/rwcarlsen/goexif/exif"
)

// GetImageTakenAt extracts the EXIF capture timestamp of an image as a Unix
// timestamp. Missing or unreadable EXIF data is not an error; enrollment
// images from webcams frequently carry none.
func GetImageTakenAt(filePath string) *int64 {
	file, err := os.Open(filePath)
	if err != nil {
		log.Printf("metadata: failed to open %s: %v", filePath, err)
		return nil
	}
	defer file.Close()

	exifData, err := exif.Decode(file)
	if err != nil {
		return nil
	}

	dt, err := exifData.DateTime()
	if err != nil {
		return nil
	}
	ts := dt.Unix()
	return &ts
}
