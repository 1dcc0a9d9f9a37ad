// Package all registers every built-in row source with the source factory.
// Import it for side effects:
//
//	import _ "mysqlbulk/internal/source/all"
package all

import (
	_ "mysqlbulk/internal/source/csv"
	_ "mysqlbulk/internal/source/mssql"
	_ "mysqlbulk/internal/source/mysql"
	_ "mysqlbulk/internal/source/oracle"
	_ "mysqlbulk/internal/source/postgres"
	_ "mysqlbulk/internal/source/sqlite"
)
