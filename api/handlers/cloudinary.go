package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"

	"github.com/scoutbase/recruiting-api/models"
)

// chatUploadFolder is where chat attachments land in Cloudinary
const chatUploadFolder = "chat-uploads"

// CloudinaryHandler handles Cloudinary related requests
type CloudinaryHandler struct{}

// GenerateSignature generates a signature for direct-to-Cloudinary uploads
func (c CloudinaryHandler) GenerateSignature(w http.ResponseWriter, r *http.Request) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	uploadPreset := os.Getenv("CLOUDINARY_UPLOAD_PRESET")
	apiSecret := os.Getenv("CLOUDINARY_API_SECRET")

	// Create the signature
	h := hmac.New(sha1.New, []byte(apiSecret))
	h.Write([]byte("timestamp=" + timestamp + "&upload_preset=" + uploadPreset))
	signature := hex.EncodeToString(h.Sum(nil))

	// Respond with the timestamp and signature
	response := map[string]string{
		"timestamp": timestamp,
		"signature": signature,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Uploader wraps the Cloudinary SDK for server-side attachment uploads
type Uploader struct {
	cld *cloudinary.Cloudinary
}

// NewUploader builds an Uploader from the CLOUDINARY_* environment variables
func NewUploader() (*Uploader, error) {
	cld, err := cloudinary.NewFromParams(
		os.Getenv("CLOUDINARY_CLOUD_NAME"),
		os.Getenv("CLOUDINARY_API_KEY"),
		os.Getenv("CLOUDINARY_API_SECRET"),
	)
	if err != nil {
		return nil, err
	}
	return &Uploader{cld: cld}, nil
}

// Upload stores a chat attachment and returns its metadata. The public ID is
// random so filenames never collide or leak.
func (u *Uploader) Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.MessageFile, error) {
	resp, err := u.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		PublicID:     uuid.New().String(),
		Folder:       chatUploadFolder,
		ResourceType: "auto",
	})
	if err != nil {
		return nil, err
	}
	return &models.MessageFile{
		URL:  resp.SecureURL,
		Name: header.Filename,
		Size: header.Size,
	}, nil
}

// Destroy removes an uploaded attachment given its delivery URL
func (u *Uploader) Destroy(ctx context.Context, fileURL string) error {
	_, err := u.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID: publicIDFromURL(fileURL),
	})
	return err
}

// publicIDFromURL recovers the Cloudinary public ID from a delivery URL:
// everything after the /upload/v123/ segment, minus the file extension.
func publicIDFromURL(fileURL string) string {
	_, after, found := strings.Cut(fileURL, "/upload/")
	if !found {
		return fileURL
	}
	if slash := strings.IndexByte(after, '/'); slash >= 0 && strings.HasPrefix(after, "v") {
		if _, err := strconv.Atoi(after[1:slash]); err == nil {
			after = after[slash+1:]
		}
	}
	if dot := strings.LastIndexByte(after, '.'); dot > strings.LastIndexByte(after, '/') {
		after = after[:dot]
	}
	return after
}
