package handlers

import (
	"net/url"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	config "github.com/okemsocial/okem_social/configs"
)

const defaultUploadFolder = "okem_social_attachments"

// GenerateUploadSignature signs a direct client upload to Cloudinary. The
// stored asset URL goes into a message's attachment_url.
func GenerateUploadSignature(c *fiber.Ctx) error {
	cld, err := cloudinary.NewFromURL(config.Config("CLOUDINARY_URL"))
	if err != nil {
		log.Errorf("cloudinary config: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Uploads are not configured")
	}
	cloud := cld.Config.Cloud

	folder := config.ConfigDefault("UPLOAD_FOLDER", defaultUploadFolder)
	timestamp := time.Now().Unix()
	signature, err := api.SignParameters(url.Values{
		"folder":    {folder},
		"timestamp": {strconv.FormatInt(timestamp, 10)},
	}, cloud.APISecret)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to sign upload params")
	}

	return c.JSON(fiber.Map{
		"signature":  signature,
		"timestamp":  timestamp,
		"api_key":    cloud.APIKey,
		"cloud_name": cloud.CloudName,
		"folder":     folder,
	})
}
