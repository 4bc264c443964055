package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// CompilationMetadata is an append-only record of one finished compilation.
type CompilationMetadata struct {
	// ConfigName is the name of the compiled configuration.
	ConfigName string `json:"config_name"`

	// OutputPath is the path the list was written to, if any.
	OutputPath string `json:"output_path,omitempty"`

	// ListVersion is the Version header value of the compiled list, if any.
	ListVersion string `json:"list_version,omitempty"`

	// Timestamp is the compilation time in milliseconds since the Unix
	// epoch.
	Timestamp int64 `json:"timestamp"`

	// SourceCount is the number of sources in the configuration.
	SourceCount int `json:"source_count"`

	// RuleCount is the number of lines in the compiled list.
	RuleCount int `json:"rule_count"`

	// Duration is the compilation duration in milliseconds.
	Duration int64 `json:"duration"`
}

// MetadataLog is the typed convenience namespace for compilation history,
// stored under "metadata/compilations/<config-name>/<timestamp>".
type MetadataLog struct {
	store Interface
}

// NewMetadataLog returns a new compilation history log over store.  store
// must not be nil.
func NewMetadataLog(store Interface) (l *MetadataLog) {
	return &MetadataLog{
		store: store,
	}
}

// Append stores one compilation record.
func (l *MetadataLog) Append(ctx context.Context, md *CompilationMetadata) (err error) {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("metadata log: encoding %q: %w", md.ConfigName, err)
	}

	key := Key{
		"metadata",
		"compilations",
		md.ConfigName,
		strconv.FormatInt(md.Timestamp, 10),
	}

	return l.store.Set(ctx, key, data, 0)
}

// History returns up to limit most recent records for configName, newest
// first.
func (l *MetadataLog) History(
	ctx context.Context,
	configName string,
	limit int,
) (mds []*CompilationMetadata, err error) {
	entries, err := l.store.List(ctx, &ListOptions{
		Prefix:  Key{"metadata", "compilations", configName},
		Limit:   limit,
		Reverse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("metadata log: listing %q: %w", configName, err)
	}

	mds = make([]*CompilationMetadata, 0, len(entries))
	for _, e := range entries {
		md := &CompilationMetadata{}
		err = json.Unmarshal(e.Data, md)
		if err != nil {
			return nil, fmt.Errorf("metadata log: decoding %q: %w", e.Key.Join(), err)
		}

		mds = append(mds, md)
	}

	return mds, nil
}
