package entity

import (
	"time"

	"github.com/hertarr/ordi/common"
)

type IndexerState struct {
	CreatedAt     time.Time      `json:"createdAt"`
	ClientVersion string         `json:"clientVersion"`
	DBVersion     int32          `json:"dbVersion"`
	Network       common.Network `json:"network"`
}
