package openai_compatible

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

// ImageHandler relays an image generation response. Image billing is per
// image, so the returned usage only carries prompt tokens when the upstream
// reports them.
func ImageHandler(c *gin.Context, resp *http.Response) (*relaymodel.Usage, *relaymodel.ErrorWithStatusCode) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "read upstream image response"), "read_response_body_failed")
	}
	_ = resp.Body.Close()

	var parsed relaymodel.ImageResponse
	if err = json.Unmarshal(body, &parsed); err != nil {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "unmarshal upstream image response"), "unmarshal_response_body_failed")
	}

	out, err := json.Marshal(&parsed)
	if err != nil {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "marshal relayed image response"), "marshal_response_body_failed")
	}

	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.Header().Set("Content-Length", strconv.Itoa(len(out)))
	c.Writer.WriteHeader(resp.StatusCode)
	if _, err = io.Copy(c.Writer, bytes.NewReader(out)); err != nil {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "write image response"), "write_response_failed")
	}

	usage := parsed.Usage
	if usage == nil {
		usage = &relaymodel.Usage{}
	}
	return usage, nil
}
