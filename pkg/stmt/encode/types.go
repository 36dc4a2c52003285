// Copyright 2026 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package encode

import (
	"strconv"
	"strings"

	"github.com/pingcap/tidb/pkg/parser/mysql"
)

func supportedType(tp byte) bool {
	switch tp {
	case mysql.TypeTiny, mysql.TypeShort, mysql.TypeInt24, mysql.TypeLong, mysql.TypeLonglong,
		mysql.TypeFloat, mysql.TypeDouble, mysql.TypeNewDecimal, mysql.TypeBit,
		mysql.TypeYear, mysql.TypeDate, mysql.TypeDatetime, mysql.TypeTimestamp, mysql.TypeDuration,
		mysql.TypeVarchar, mysql.TypeVarString, mysql.TypeString, mysql.TypeEnum, mysql.TypeSet,
		mysql.TypeJSON, mysql.TypeTinyBlob, mysql.TypeMediumBlob, mysql.TypeLongBlob, mysql.TypeBlob,
		mysql.TypeNull:
		return true
	}
	return false
}

var typeNames = map[byte]string{
	mysql.TypeTiny:       "TINYINT",
	mysql.TypeShort:      "SMALLINT",
	mysql.TypeInt24:      "MEDIUMINT",
	mysql.TypeLong:       "INT",
	mysql.TypeLonglong:   "BIGINT",
	mysql.TypeFloat:      "FLOAT",
	mysql.TypeDouble:     "DOUBLE",
	mysql.TypeNewDecimal: "DECIMAL",
	mysql.TypeBit:        "BIT",
	mysql.TypeYear:       "YEAR",
	mysql.TypeDate:       "DATE",
	mysql.TypeDatetime:   "DATETIME",
	mysql.TypeTimestamp:  "TIMESTAMP",
	mysql.TypeDuration:   "TIME",
	mysql.TypeVarchar:    "VARCHAR",
	mysql.TypeVarString:  "VARCHAR",
	mysql.TypeString:     "CHAR",
	mysql.TypeEnum:       "ENUM",
	mysql.TypeSet:        "SET",
	mysql.TypeJSON:       "JSON",
	mysql.TypeTinyBlob:   "TINYBLOB",
	mysql.TypeMediumBlob: "MEDIUMBLOB",
	mysql.TypeLongBlob:   "LONGBLOB",
	mysql.TypeBlob:       "BLOB",
	mysql.TypeNull:       "NULL",
	mysql.TypeGeometry:   "GEOMETRY",
}

// TypeName returns the SQL name of a MySQL type tag.
func TypeName(tp byte) string {
	if s, ok := typeNames[tp]; ok {
		return s
	}
	return "0x" + strconv.FormatUint(uint64(tp), 16)
}

// TypeByName is the inverse of TypeName, case-insensitive. Integer and text
// aliases of INFORMATION_SCHEMA.PARAMETERS are accepted.
func TypeByName(name string) (byte, bool) {
	tp, ok := typesByName[strings.ToUpper(strings.TrimSpace(name))]
	return tp, ok
}

var typesByName = map[string]byte{
	"TINYINT":    mysql.TypeTiny,
	"BOOL":       mysql.TypeTiny,
	"BOOLEAN":    mysql.TypeTiny,
	"SMALLINT":   mysql.TypeShort,
	"MEDIUMINT":  mysql.TypeInt24,
	"INT":        mysql.TypeLong,
	"INTEGER":    mysql.TypeLong,
	"BIGINT":     mysql.TypeLonglong,
	"FLOAT":      mysql.TypeFloat,
	"DOUBLE":     mysql.TypeDouble,
	"REAL":       mysql.TypeDouble,
	"DECIMAL":    mysql.TypeNewDecimal,
	"NUMERIC":    mysql.TypeNewDecimal,
	"BIT":        mysql.TypeBit,
	"YEAR":       mysql.TypeYear,
	"DATE":       mysql.TypeDate,
	"DATETIME":   mysql.TypeDatetime,
	"TIMESTAMP":  mysql.TypeTimestamp,
	"TIME":       mysql.TypeDuration,
	"CHAR":       mysql.TypeString,
	"VARCHAR":    mysql.TypeVarchar,
	"BINARY":     mysql.TypeString,
	"VARBINARY":  mysql.TypeVarchar,
	"TINYTEXT":   mysql.TypeTinyBlob,
	"TEXT":       mysql.TypeBlob,
	"MEDIUMTEXT": mysql.TypeMediumBlob,
	"LONGTEXT":   mysql.TypeLongBlob,
	"TINYBLOB":   mysql.TypeTinyBlob,
	"BLOB":       mysql.TypeBlob,
	"MEDIUMBLOB": mysql.TypeMediumBlob,
	"LONGBLOB":   mysql.TypeLongBlob,
	"ENUM":       mysql.TypeEnum,
	"SET":        mysql.TypeSet,
	"JSON":       mysql.TypeJSON,
	"GEOMETRY":   mysql.TypeGeometry,
}
