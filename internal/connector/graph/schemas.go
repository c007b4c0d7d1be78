package graph

import "github.com/opsrelay/relay-core/internal/endpoint"

var schemas = map[string]*endpoint.Schema{
	"sharepoint.file": {
		Fields: []*endpoint.FieldDefinition{
			{Name: "id", DataType: "string", Position: 0},
			{Name: "name", DataType: "string", Position: 1},
			{Name: "path", DataType: "string", Position: 2},
			{Name: "size", DataType: "long", Position: 3},
			{Name: "mimeType", DataType: "string", Nullable: true, Position: 4},
			{Name: "createdTime", DataType: "timestamp", Nullable: true, Position: 5},
			{Name: "modifiedTime", DataType: "timestamp", Nullable: true, Position: 6},
			{Name: "webUrl", DataType: "string", Nullable: true, Position: 7},
			{Name: "createdBy", DataType: "string", Nullable: true, Position: 8},
			{Name: "modifiedBy", DataType: "string", Nullable: true, Position: 9},
		},
	},
	"sharepoint.folder": {
		Fields: []*endpoint.FieldDefinition{
			{Name: "id", DataType: "string", Position: 0},
			{Name: "name", DataType: "string", Position: 1},
			{Name: "path", DataType: "string", Position: 2},
			{Name: "childCount", DataType: "int", Position: 3},
			{Name: "createdTime", DataType: "timestamp", Nullable: true, Position: 4},
			{Name: "modifiedTime", DataType: "timestamp", Nullable: true, Position: 5},
			{Name: "webUrl", DataType: "string", Nullable: true, Position: 6},
		},
	},
	"graph.device": {
		Fields: []*endpoint.FieldDefinition{
			{Name: "id", DataType: "string", Position: 0},
			{Name: "deviceName", DataType: "string", Position: 1},
			{Name: "operatingSystem", DataType: "string", Nullable: true, Position: 2},
			{Name: "osVersion", DataType: "string", Nullable: true, Position: 3},
			{Name: "complianceState", DataType: "string", Nullable: true, Position: 4},
			{Name: "userPrincipal", DataType: "string", Nullable: true, Position: 5},
			{Name: "lastSyncAt", DataType: "timestamp", Nullable: true, Position: 6},
			{Name: "serialNumber", DataType: "string", Nullable: true, Position: 7},
			{Name: "model", DataType: "string", Nullable: true, Position: 8},
			{Name: "manufacturer", DataType: "string", Nullable: true, Position: 9},
		},
	},
}
