package matroska

import (
	"github.com/babelcloud/mkvblock/internal/ebmlio"
)

// Element IDs handled by this package.
const (
	IDCluster           ebmlio.ID = 0x1F43B675
	IDTimestamp         ebmlio.ID = 0xE7
	IDBlockGroup        ebmlio.ID = 0xA0
	IDBlock             ebmlio.ID = 0xA1
	IDBlockVirtual      ebmlio.ID = 0xA2
	IDSimpleBlock       ebmlio.ID = 0xA3
	IDBlockDuration     ebmlio.ID = 0x9B
	IDReferencePriority ebmlio.ID = 0xFA
	IDReferenceBlock    ebmlio.ID = 0xFB
	IDVoid              ebmlio.ID = 0xEC
)
