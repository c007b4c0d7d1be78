package graph

import (
	"context"

	"github.com/opsrelay/relay-core/internal/endpoint"
)

// driveIterator walks the drive breadth-first, yielding file or folder
// records per dataset.
type driveIterator struct {
	graph       *Graph
	ctx         context.Context
	foldersOnly bool
	queue       []string
	records     []endpoint.Record
	index       int
	current     endpoint.Record
	err         error
	limit       int64
	count       int64
}

func (it *driveIterator) Next() bool {
	if it.limit > 0 && it.count >= it.limit {
		return false
	}

	if it.index < len(it.records) {
		it.current = it.records[it.index]
		it.index++
		it.count++
		return true
	}

	it.records = it.records[:0]
	it.index = 0

	for len(it.queue) > 0 {
		if it.ctx.Err() != nil {
			it.err = it.ctx.Err()
			return false
		}

		path := it.queue[0]
		it.queue = it.queue[1:]

		items, err := it.graph.listChildren(it.ctx, path)
		if err != nil {
			it.err = err
			return false
		}

		for _, item := range items {
			itemPath := joinDrivePath(path, item.Name)
			if item.Folder != nil {
				it.queue = append(it.queue, itemPath)
				if it.foldersOnly {
					it.records = append(it.records, folderRecord(item, itemPath))
				}
			} else if !it.foldersOnly && item.File != nil {
				it.records = append(it.records, fileRecord(item, itemPath))
			}
		}

		if it.index < len(it.records) {
			it.current = it.records[it.index]
			it.index++
			it.count++
			return true
		}
	}

	return false
}

func (it *driveIterator) Value() endpoint.Record { return it.current }
func (it *driveIterator) Err() error             { return it.err }
func (it *driveIterator) Close() error           { return nil }

func fileRecord(item DriveItem, path string) endpoint.Record {
	mimeType := ""
	if item.File != nil {
		mimeType = item.File.MimeType
	}
	return endpoint.Record{
		"id":           item.ID,
		"name":         item.Name,
		"path":         path,
		"size":         item.Size,
		"mimeType":     mimeType,
		"createdTime":  item.CreatedDateTime,
		"modifiedTime": item.ModifiedDateTime,
		"webUrl":       item.WebURL,
		"createdBy":    displayName(item.CreatedBy),
		"modifiedBy":   displayName(item.ModifiedBy),
	}
}

func folderRecord(item DriveItem, path string) endpoint.Record {
	childCount := 0
	if item.Folder != nil {
		childCount = item.Folder.ChildCount
	}
	return endpoint.Record{
		"id":           item.ID,
		"name":         item.Name,
		"path":         path,
		"childCount":   childCount,
		"createdTime":  item.CreatedDateTime,
		"modifiedTime": item.ModifiedDateTime,
		"webUrl":       item.WebURL,
	}
}

func displayName(id *Identity) string {
	if id != nil && id.User != nil {
		return id.User.DisplayName
	}
	return ""
}
