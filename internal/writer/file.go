package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/nucleus/homegraph/internal/config"
	"github.com/nucleus/homegraph/internal/fault"
	"github.com/nucleus/homegraph/internal/model"
)

// FileWriter lays the gold dataset out as one columnar directory tree:
// one directory per entity kind, properties partitioned by city, edges
// partitioned by type. The output directory is cleared before writing so a
// rerun replaces the previous tree wholesale.
type FileWriter struct {
	cfg config.FileDestination
}

// NewFileWriter builds the columnar file destination.
func NewFileWriter(cfg config.FileDestination) *FileWriter {
	return &FileWriter{cfg: cfg}
}

// Name implements Destination.
func (w *FileWriter) Name() string { return config.DestinationFile }

// Write implements Destination.
func (w *FileWriter) Write(ctx context.Context, tables *model.GoldTables) (*Result, error) {
	if err := os.RemoveAll(w.cfg.OutputDir); err != nil {
		return nil, fault.New(fault.CodeDestination, fmt.Errorf("clear output dir: %w", err))
	}
	if err := os.MkdirAll(w.cfg.OutputDir, 0o755); err != nil {
		return nil, fault.New(fault.CodeDestination, fmt.Errorf("create output dir: %w", err))
	}

	res := &Result{Destination: w.Name()}
	for _, kind := range model.EntityWriteOrder {
		if err := ctx.Err(); err != nil {
			return nil, fault.New(fault.CodeCancelled, err)
		}
		n, err := w.writeEntity(kind, tables)
		if err != nil {
			return nil, err
		}
		res.Nodes += n
	}
	for _, table := range tables.Edges {
		if err := ctx.Err(); err != nil {
			return nil, fault.New(fault.CodeCancelled, err)
		}
		n, err := w.writeEdges(table)
		if err != nil {
			return nil, err
		}
		res.Edges += n
	}

	if w.cfg.ObjectStore != nil {
		if err := w.upload(ctx); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// writeEntity dispatches statically on the entity kind.
func (w *FileWriter) writeEntity(kind model.EntityKind, tables *model.GoldTables) (int64, error) {
	switch kind {
	case model.KindState:
		rows := make([]map[string]any, len(tables.Entities.States))
		for i, n := range tables.Entities.States {
			rows[i] = map[string]any{"id": n.ID, "name": n.Name}
		}
		return w.writeDir(string(kind), stateSchema, map[string][]map[string]any{"": rows})
	case model.KindCounty:
		rows := make([]map[string]any, len(tables.Entities.Counties))
		for i, n := range tables.Entities.Counties {
			rows[i] = map[string]any{"id": n.ID, "name": n.Name, "state": n.State}
		}
		return w.writeDir(string(kind), geoSchema, map[string][]map[string]any{"": rows})
	case model.KindCity:
		rows := make([]map[string]any, len(tables.Entities.Cities))
		for i, n := range tables.Entities.Cities {
			rows[i] = map[string]any{"id": n.ID, "name": n.Name, "state": n.State}
		}
		return w.writeDir(string(kind), geoSchema, map[string][]map[string]any{"": rows})
	case model.KindZipCode:
		rows := make([]map[string]any, len(tables.Entities.ZipCodes))
		for i, n := range tables.Entities.ZipCodes {
			rows[i] = map[string]any{"id": n.ID, "city": n.City, "state": n.State}
		}
		return w.writeDir(string(kind), zipSchema, map[string][]map[string]any{"": rows})
	case model.KindPropertyType:
		rows := make([]map[string]any, len(tables.Entities.PropertyTypes))
		for i, n := range tables.Entities.PropertyTypes {
			rows[i] = map[string]any{"id": n.ID, "name": n.Name, "count": n.Count}
		}
		return w.writeDir(string(kind), countedSchema, map[string][]map[string]any{"": rows})
	case model.KindFeature:
		rows := make([]map[string]any, len(tables.Entities.Features))
		for i, n := range tables.Entities.Features {
			rows[i] = map[string]any{"id": n.ID, "name": n.Name, "count": n.Count}
		}
		return w.writeDir(string(kind), countedSchema, map[string][]map[string]any{"": rows})
	case model.KindPriceRange:
		rows := make([]map[string]any, len(tables.Entities.PriceRanges))
		for i, n := range tables.Entities.PriceRanges {
			rows[i] = map[string]any{
				"id": n.ID, "label": n.Label,
				"min_price": n.MinPrice, "max_price": n.MaxPrice, "count": n.Count,
			}
		}
		return w.writeDir(string(kind), priceRangeSchema, map[string][]map[string]any{"": rows})
	case model.KindNeighborhood:
		rows := make([]map[string]any, len(tables.Neighborhoods))
		for i := range tables.Neighborhoods {
			rows[i] = neighborhoodRow(&tables.Neighborhoods[i])
		}
		return w.writeDir(string(kind), neighborhoodSchema, map[string][]map[string]any{"": rows})
	case model.KindProperty:
		parts := make(map[string][]map[string]any)
		for i := range tables.Properties {
			doc := &tables.Properties[i]
			part := "city=" + partitionValue(doc.City)
			parts[part] = append(parts[part], propertyRow(doc))
		}
		return w.writeDir(string(kind), propertySchema, parts)
	case model.KindWikipediaArticle:
		rows := make([]map[string]any, len(tables.Wikipedia))
		for i := range tables.Wikipedia {
			rows[i] = wikipediaRow(&tables.Wikipedia[i])
		}
		return w.writeDir(string(kind), wikipediaSchema, map[string][]map[string]any{"": rows})
	case model.KindTopicCluster:
		if len(tables.Entities.TopicClusters) == 0 {
			return 0, nil
		}
		rows := make([]map[string]any, len(tables.Entities.TopicClusters))
		for i, n := range tables.Entities.TopicClusters {
			rows[i] = map[string]any{"id": n.ID, "label": n.Label, "count": n.Count}
		}
		return w.writeDir(string(kind), topicClusterSchema, map[string][]map[string]any{"": rows})
	}
	return 0, fault.Newf(fault.CodeInternal, "file writer: unknown entity kind %q", kind)
}

func (w *FileWriter) writeEdges(table model.EdgeTable) (int64, error) {
	if len(table.Edges) == 0 {
		return 0, nil
	}
	rows := make([]map[string]any, len(table.Edges))
	for i, e := range table.Edges {
		rows[i] = map[string]any{
			"from_id":    e.FromID,
			"to_id":      e.ToID,
			"type":       string(e.Kind),
			"weight":     e.Weight,
			"undirected": e.Undirected,
		}
	}
	dir := filepath.Join("edges", "type="+string(table.Kind))
	return w.writeDir(dir, edgeSchema, map[string][]map[string]any{"": rows})
}

// writeDir writes one entity directory: a parquet part per partition plus a
// _manifest.json describing the files written.
func (w *FileWriter) writeDir(dir, schema string, partitions map[string][]map[string]any) (int64, error) {
	base := filepath.Join(w.cfg.OutputDir, dir)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return 0, fault.New(fault.CodeDestination, fmt.Errorf("create %s: %w", base, err))
	}
	type manifestFile struct {
		Path string `json:"path"`
		Rows int64  `json:"rows"`
	}
	var files []manifestFile
	var total int64
	for _, part := range sortedKeys(partitions) {
		rows := partitions[part]
		partDir := base
		rel := "part-000000.parquet"
		if part != "" {
			partDir = filepath.Join(base, part)
			rel = filepath.Join(part, "part-000000.parquet")
			if err := os.MkdirAll(partDir, 0o755); err != nil {
				return 0, fault.New(fault.CodeDestination, fmt.Errorf("create %s: %w", partDir, err))
			}
		}
		path := filepath.Join(partDir, "part-000000.parquet")
		if err := writeParquet(path, schema, rows); err != nil {
			return 0, err
		}
		files = append(files, manifestFile{Path: rel, Rows: int64(len(rows))})
		total += int64(len(rows))
	}

	manifest := map[string]any{
		"entity":     filepath.ToSlash(dir),
		"rows":       total,
		"files":      files,
		"written_at": time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return 0, fault.New(fault.CodeInternal, fmt.Errorf("encode manifest: %w", err))
	}
	if err := os.WriteFile(filepath.Join(base, "_manifest.json"), data, 0o644); err != nil {
		return 0, fault.New(fault.CodeDestination, fmt.Errorf("write manifest: %w", err))
	}
	return total, nil
}

// writeParquet writes one parquet part with SNAPPY compression.
func writeParquet(path, schema string, rows []map[string]any) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fault.New(fault.CodeDestination, fmt.Errorf("open %s: %w", path, err))
	}
	pw, err := writer.NewJSONWriter(schema, fw, 4)
	if err != nil {
		_ = fw.Close()
		return fault.New(fault.CodeDestination, fmt.Errorf("parquet writer %s: %w", path, err))
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		encoded, err := json.Marshal(row)
		if err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return fault.New(fault.CodeInternal, fmt.Errorf("encode row: %w", err))
		}
		if err := pw.Write(string(encoded)); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return fault.New(fault.CodeDestination, fmt.Errorf("write row %s: %w", path, err))
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return fault.New(fault.CodeDestination, fmt.Errorf("finalize %s: %w", path, err))
	}
	return fw.Close()
}

// upload mirrors the finished local tree to the configured object store.
func (w *FileWriter) upload(ctx context.Context) error {
	store := w.cfg.ObjectStore
	client, err := minio.New(store.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(store.AccessKey, store.SecretKey, ""),
		Secure: store.UseSSL,
	})
	if err != nil {
		return fault.New(fault.CodeDestination, fmt.Errorf("object store client: %w", err))
	}
	exists, err := client.BucketExists(ctx, store.Bucket)
	if err != nil {
		return fault.Transient(fault.CodeDestination, fmt.Errorf("check bucket %s: %w", store.Bucket, err))
	}
	if !exists {
		return fault.Newf(fault.CodeDestination, "bucket %s not found", store.Bucket)
	}
	return filepath.WalkDir(w.cfg.OutputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(w.cfg.OutputDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if store.Prefix != "" {
			key = strings.TrimSuffix(store.Prefix, "/") + "/" + key
		}
		if _, err := client.FPutObject(ctx, store.Bucket, key, path, minio.PutObjectOptions{}); err != nil {
			return fault.Transient(fault.CodeDestination, fmt.Errorf("upload %s: %w", key, err))
		}
		return nil
	})
}

func propertyRow(doc *model.PropertyDoc) map[string]any {
	row := map[string]any{
		"listing_id":      doc.ListingID,
		"neighborhood_id": doc.NeighborhoodID,
		"address_street":  doc.AddressStreet,
		"city":            doc.City,
		"state":           doc.State,
		"zip_code":        doc.ZipCode,
		"price":           doc.Price,
		"price_bucket":    doc.PriceBucket,
		"bedrooms":        int64(doc.Bedrooms),
		"bathrooms":       doc.Bathrooms,
		"square_feet":     int64(doc.SquareFeet),
		"year_built":      int64(doc.YearBuilt),
		"property_type":   doc.PropertyType,
		"features":        jsonColumn(doc.Features),
		"description":     doc.Description,
		"listing_date":    doc.ListingDate,
		"embedding":       jsonColumn(doc.Embedding),
	}
	if doc.Location != nil {
		row["latitude"] = doc.Location.Lat
		row["longitude"] = doc.Location.Lon
	}
	return row
}

func neighborhoodRow(doc *model.NeighborhoodDoc) map[string]any {
	return map[string]any{
		"neighborhood_id":        doc.NeighborhoodID,
		"name":                   doc.Name,
		"city":                   doc.City,
		"state":                  doc.State,
		"zip_code":               doc.ZipCode,
		"population":             doc.Population,
		"walkability_score":      doc.WalkabilityScore,
		"school_rating":          doc.SchoolRating,
		"crime_index":            doc.CrimeIndex,
		"description":            doc.Description,
		"lifestyle_tags":         jsonColumn(doc.LifestyleTags),
		"wikipedia_correlations": jsonColumn(doc.WikipediaCorrelations),
		"embedding":              jsonColumn(doc.Embedding),
	}
}

func wikipediaRow(doc *model.WikipediaDoc) map[string]any {
	return map[string]any{
		"page_id":       doc.PageID,
		"title":         doc.Title,
		"long_summary":  doc.LongSummary,
		"short_summary": doc.ShortSummary,
		"topic_tag":     doc.TopicTag,
		"truncated":     doc.Truncated,
		"embedding":     jsonColumn(doc.Embedding),
	}
}

// jsonColumn serializes array-valued fields into a text column; the
// columnar layer has no nested types in this layout.
func jsonColumn(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

// partitionValue makes a raw city string safe as a directory name.
func partitionValue(v string) string {
	if v == "" {
		return "unknown"
	}
	v = strings.ReplaceAll(v, " ", "_")
	v = strings.ReplaceAll(v, string(filepath.Separator), "_")
	return v
}

func sortedKeys(m map[string][]map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tag-string parquet schemas, one per entity directory layout.
var (
	stateSchema = tagSchema(
		"name=id, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=name, type=BYTE_ARRAY, convertedtype=UTF8",
	)
	geoSchema = tagSchema(
		"name=id, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=name, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=state, type=BYTE_ARRAY, convertedtype=UTF8",
	)
	zipSchema = tagSchema(
		"name=id, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=city, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=state, type=BYTE_ARRAY, convertedtype=UTF8",
	)
	countedSchema = tagSchema(
		"name=id, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=name, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=count, type=INT64",
	)
	priceRangeSchema = tagSchema(
		"name=id, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=label, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=min_price, type=DOUBLE",
		"name=max_price, type=DOUBLE",
		"name=count, type=INT64",
	)
	topicClusterSchema = tagSchema(
		"name=id, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=label, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=count, type=INT64",
	)
	propertySchema = tagSchema(
		"name=listing_id, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=neighborhood_id, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=address_street, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=city, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=state, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=zip_code, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=latitude, type=DOUBLE",
		"name=longitude, type=DOUBLE",
		"name=price, type=DOUBLE",
		"name=price_bucket, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=bedrooms, type=INT64",
		"name=bathrooms, type=DOUBLE",
		"name=square_feet, type=INT64",
		"name=year_built, type=INT64",
		"name=property_type, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=features, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=description, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=listing_date, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=embedding, type=BYTE_ARRAY, convertedtype=UTF8",
	)
	neighborhoodSchema = tagSchema(
		"name=neighborhood_id, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=name, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=city, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=state, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=zip_code, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=population, type=INT64",
		"name=walkability_score, type=DOUBLE",
		"name=school_rating, type=DOUBLE",
		"name=crime_index, type=DOUBLE",
		"name=description, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=lifestyle_tags, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=wikipedia_correlations, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=embedding, type=BYTE_ARRAY, convertedtype=UTF8",
	)
	wikipediaSchema = tagSchema(
		"name=page_id, type=INT64",
		"name=title, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=long_summary, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=short_summary, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=topic_tag, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=truncated, type=BOOLEAN",
		"name=embedding, type=BYTE_ARRAY, convertedtype=UTF8",
	)
	edgeSchema = tagSchema(
		"name=from_id, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=to_id, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=type, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=weight, type=DOUBLE",
		"name=undirected, type=BOOLEAN",
	)
)

// tagSchema renders the JSON schema string the parquet JSON writer expects.
func tagSchema(fields ...string) string {
	defs := make([]map[string]string, 0, len(fields))
	for _, f := range fields {
		defs = append(defs, map[string]string{"Tag": f + ", repetitiontype=OPTIONAL"})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": defs,
	}
	data, _ := json.Marshal(out)
	return string(data)
}
