package axml

const (
	wordSize        = 4
	chunkHeaderSize = 2 * wordSize

	// Chunk tags, i.e. the first word of each chunk: type in the low 16 bits,
	// header size in the high 16 bits.
	chunkAxmlFile    = 0x00080003
	chunkResourceIds = 0x00080180
	chunkStringTable = 0x001C0001
	chunkXmlNsStart  = 0x00100100
	chunkXmlNsEnd    = 0x00100101
	chunkXmlTagStart = 0x00100102
	chunkXmlTagEnd   = 0x00100103
	chunkXmlText     = 0x00100104

	// Marks "no namespace" in namespace slots and "typed value" in the raw value slot.
	noIndex = 0xFFFFFFFF

	// Fixed sizes of the node chunks, header and filler words included.
	nsChunkSize      = 6 * wordSize
	tagEndChunkSize  = 6 * wordSize
	textChunkSize    = 7 * wordSize
	tagStartExtStart = 4 * wordSize // attributeStart is relative to this
	tagStartMinSize  = 9 * wordSize

	attrMinSize = 5 * wordSize

	stringPoolHeaderSize = 7 * wordSize

	defaultBufferSize   = 4 * 2048
	defaultMaxChunkSize = 64 * 1024 * 1024
)

func chunkName(tag uint32) string {
	switch tag {
	case chunkAxmlFile:
		return "document"
	case chunkResourceIds:
		return "resource map"
	case chunkStringTable:
		return "string pool"
	case chunkXmlNsStart:
		return "namespace start"
	case chunkXmlNsEnd:
		return "namespace end"
	case chunkXmlTagStart:
		return "element start"
	case chunkXmlTagEnd:
		return "element end"
	case chunkXmlText:
		return "text"
	default:
		return "unknown"
	}
}
