package mkvsubs

// EBML and Matroska element IDs.
//
// IDs are stored with the VINT length marker preserved, exactly as they appear
// on the wire. Only the elements the extraction pipeline touches are listed;
// everything else is skipped by size.
const (
	// EBML header
	IDEBMLHeader = 0x1A45DFA3 // The EBML header element
	IDDocType    = 0x4282     // A string that describes the type of document (e.g., "matroska")

	// Segment and its top-level children
	IDSegment     = 0x18538067 // The root element that contains all other top-level elements
	IDSeekHead    = 0x114D9B74 // Contains a list of seek points to other EBML elements
	IDSegmentInfo = 0x1549A966 // Contains general information about the segment
	IDTracks      = 0x1654AE6B // A top-level element containing all track entries
	IDCluster     = 0x1F43B675 // A cluster contains blocks of data for a specific timestamp
	IDCues        = 0x1C53BB6B // A top-level element containing all cue points
	IDAttachments = 0x1941A469 // A top-level element containing all attached files
	IDChapters    = 0x1043A770 // A top-level element containing all chapter entries
	IDTags        = 0x1254C367 // A top-level element containing all tags

	// SeekHead children
	IDSeek    = 0x4DBB // A single seek point to an EBML element
	IDSeekID  = 0x53AB // The ID of the element to seek to
	IDSeekPos = 0x53AC // The position of the element in the segment

	// SegmentInfo children
	IDTimestampScale = 0x2AD7B1 // Nanoseconds per timestamp unit

	// Tracks children
	IDTrackEntry      = 0xAE     // A single track entry containing information about a track
	IDTrackNum        = 0xD7     // The track number as used in the Block header
	IDTrackType       = 0x83     // The type of the track (video, audio, subtitle, ...)
	IDTrackName       = 0x536E   // The name of the track
	IDLanguage        = 0x22B59C // The legacy (ISO 639-2) language of the track
	IDLanguageBCP47   = 0x22B59D // The BCP 47 language of the track, wins over IDLanguage
	IDCodecID         = 0x86     // The ID of the codec used for this track
	IDCodecPriv       = 0x63A2   // Private data specific to the codec
	IDDefaultDuration = 0x23E383 // The default duration of a block on this track, in ns

	// Cluster children
	IDTimestamp       = 0xE7   // The timestamp of the cluster
	IDSimpleBlock     = 0xA3   // A block containing raw data without additional metadata
	IDBlockGroup      = 0xA0   // A group of blocks with additional metadata
	IDBlock           = 0xA1   // A block containing raw data
	IDBlockDuration   = 0x9B   // The duration of the block in timestamp units
	IDBlockAdditions  = 0x75A1 // Additional data attached to a block
	IDBlockMore       = 0xA6   // A single block addition
	IDBlockAdditional = 0xA5   // The payload of a block addition

	// Cues children
	IDCuePoint            = 0xBB // A single cue point pointing to a specific timestamp
	IDCueTime             = 0xB3 // The timestamp of the cue point
	IDCueTrackPositions   = 0xB7 // Positions for one track at the cue time
	IDCueTrack            = 0xF7 // The track the positions refer to
	IDCueClusterPosition  = 0xF1 // The cluster position relative to the segment data start
	IDCueRelativePosition = 0xF0 // The block position relative to the cluster data start

	// Attachments children
	IDAttachedFile = 0x61A7 // A single attached file
	IDFileName     = 0x466E // The name of the attached file
	IDFileMimeType = 0x4660 // The MIME type of the attached file
	IDFileData     = 0x465C // The raw bytes of the attached file
)

// trackTypeSubtitle is the TrackType value for subtitle tracks.
const trackTypeSubtitle = 17

// segmentLevelIDs is the set of IDs legal directly inside a Segment. Inside an
// unknown-sized Cluster, hitting one of these means the cluster has ended.
var segmentLevelIDs = map[uint64]bool{
	IDSeekHead:    true,
	IDSegmentInfo: true,
	IDTracks:      true,
	IDCluster:     true,
	IDCues:        true,
	IDAttachments: true,
	IDChapters:    true,
	IDTags:        true,
}
