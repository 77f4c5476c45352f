package backend

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFramingRoundTrip(t *testing.T) {
	savedAt := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	header := &BlobHeader{
		Encoding:    "zstd",
		Entries:     3,
		PayloadSize: 4096,
		Digest:      "blake3:deadbeef",
		SavedAt:     savedAt,
		WriterID:    "writer-1",
	}
	bodyData := []byte("compressed bytes")

	var buf bytes.Buffer
	require.NoError(t, WriteFramed(&buf, header, bytes.NewReader(bodyData)))
	require.True(t, IsFramed(buf.Bytes()))

	readHeader, bodyReader, err := ReadFramed(&buf)
	require.NoError(t, err)

	require.Equal(t, header.Encoding, readHeader.Encoding)
	require.Equal(t, header.Entries, readHeader.Entries)
	require.Equal(t, header.PayloadSize, readHeader.PayloadSize)
	require.Equal(t, header.Digest, readHeader.Digest)
	require.True(t, savedAt.Equal(readHeader.SavedAt))
	require.Equal(t, header.WriterID, readHeader.WriterID)

	readBody, err := io.ReadAll(bodyReader)
	require.NoError(t, err)
	require.Equal(t, bodyData, readBody)
}

func TestFramingEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFramed(&buf, &BlobHeader{Encoding: "identity"}, bytes.NewReader(nil)))

	readHeader, bodyReader, err := ReadFramed(&buf)
	require.NoError(t, err)
	require.Empty(t, readHeader.WriterID)

	readBody, err := io.ReadAll(bodyReader)
	require.NoError(t, err)
	require.Empty(t, readBody)
}

func TestReadFramedInvalidMagic(t *testing.T) {
	_, _, err := ReadFramed(strings.NewReader("CCB1rest of data"))
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestReadFramedTruncated(t *testing.T) {
	_, _, err := ReadFramed(strings.NewReader("IG"))
	require.Error(t, err)

	var buf bytes.Buffer
	buf.Write(MagicBytes)
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(100)))
	buf.WriteString(`{"encoding":`)
	_, _, err = ReadFramed(&buf)
	require.Error(t, err)
}

func TestReadFramedHeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(MagicBytes)
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(MaxHeaderSize+1)))

	_, _, err := ReadFramed(&buf)
	require.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestIsFramed(t *testing.T) {
	require.False(t, IsFramed(nil))
	require.False(t, IsFramed([]byte("IGS")))
	require.False(t, IsFramed([]byte("CCB1....")))
	require.True(t, IsFramed([]byte("IGS1....")))
}
