package sdkperf

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	NetworkLatencyTable   = "network_latency"
	ExecutionLatencyTable = "execution_latency"
	BinarySizeTable       = "binary_size"
)

// Inserter writes a slice of records into one table.
type Inserter interface {
	Insert(ctx context.Context, table string, rows interface{}) error
}

type sqlInserter struct {
	db     *goqu.Database
	schema string
}

func NewSQLInserter(db *sql.DB, schema string) Inserter {
	return &sqlInserter{
		db:     goqu.New("mysql", db),
		schema: schema,
	}
}

func (i *sqlInserter) Insert(ctx context.Context, table string, rows interface{}) error {
	if reflect.ValueOf(rows).Len() == 0 {
		return nil
	}

	_, err := i.db.Insert(goqu.S(i.schema).Table(table)).Rows(rows).Executor().ExecContext(ctx)
	return errors.Wrapf(err, "could not insert into %s", table)
}

type dryRunInserter struct {
	out io.Writer
}

func NewDryRunInserter(out io.Writer) Inserter {
	return dryRunInserter{out: out}
}

func (d dryRunInserter) Insert(ctx context.Context, table string, rows interface{}) error {
	rowsVal := reflect.ValueOf(rows)
	if rowsVal.Kind() != reflect.Slice {
		fmt.Fprintf(d.out, "INSERT into %v: %+v\n", table, rows)
		return nil
	}

	if rowsVal.Len() == 0 {
		return nil
	}

	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "BULK INSERT into %v\n", table)
	for i := 0; i < rowsVal.Len(); i++ {
		fmt.Fprintf(buf, "\tINSERT into %v: %+v\n", table, rowsVal.Index(i).Interface())
	}
	_, err := fmt.Fprint(d.out, buf.String())

	return err
}

type Uploader struct {
	inserter Inserter
}

func NewUploader(inserter Inserter) *Uploader {
	return &Uploader{inserter: inserter}
}

// UploadMeasurements writes the three record kinds concurrently and reports
// every table that failed.
func (u *Uploader) UploadMeasurements(ctx context.Context, networkLatencies []NetworkLatencyRecord, executionLatencies []ExecutionLatencyRecord, binarySizes []BinarySizeRecord) error {
	uploads := []struct {
		table string
		label string
		rows  interface{}
		count int
	}{
		{NetworkLatencyTable, "network latency", networkLatencies, len(networkLatencies)},
		{ExecutionLatencyTable, "execution latency", executionLatencies, len(executionLatencies)},
		{BinarySizeTable, "binary size", binarySizes, len(binarySizes)},
	}

	var result *multierror.Error
	resultLock := &sync.Mutex{}
	wg := &sync.WaitGroup{}

	for _, upload := range uploads {
		upload := upload
		wg.Add(1)
		go func() {
			defer wg.Done()

			logrus.Infof("Uploading [%d] %s entries ...", upload.count, upload.label)
			if err := u.inserter.Insert(ctx, upload.table, upload.rows); err != nil {
				resultLock.Lock()
				result = multierror.Append(result, err)
				resultLock.Unlock()
				return
			}
			logrus.Infof("[%d] %s entries uploaded.", upload.count, upload.label)
		}()
	}
	wg.Wait()

	return result.ErrorOrNil()
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

func OpenDatabase(config DatabaseConfig) (*sql.DB, error) {
	mysqlConfig := mysql.NewConfig()
	mysqlConfig.Net = "tcp"
	mysqlConfig.Addr = fmt.Sprintf("%s:%d", config.Host, config.Port)
	mysqlConfig.User = config.User
	mysqlConfig.Passwd = config.Password

	db, err := sql.Open("mysql", mysqlConfig.FormatDSN())
	if err != nil {
		return nil, errors.Wrap(err, "could not open database")
	}
	logrus.Infof("Connected to sql [%s] as [%s].", mysqlConfig.Addr, config.User)

	return db, nil
}

func tableDefinitions(schema string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", schema),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s`.`%s` (\n"+
			"  `id` INT NOT NULL AUTO_INCREMENT,\n"+
			"  `test_run` BIGINT NOT NULL,\n"+
			"  `sdk` VARCHAR(255) NOT NULL,\n"+
			"  `version` VARCHAR(255) NULL,\n"+
			"  `cdn` VARCHAR(255) NOT NULL,\n"+
			"  `connectivity` VARCHAR(255) NOT NULL,\n"+
			"  `device` VARCHAR(255) NOT NULL,\n"+
			"  `browser_version` VARCHAR(255),\n"+
			"  `ttfb_ms` DECIMAL(10,3),\n"+
			"  `download_ms` DECIMAL(10,3),\n"+
			"  PRIMARY KEY (`id`)\n"+
			")", schema, NetworkLatencyTable),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s`.`%s` (\n"+
			"  `id` INT NOT NULL AUTO_INCREMENT,\n"+
			"  `test_run` BIGINT NOT NULL,\n"+
			"  `sdk` VARCHAR(255) NOT NULL,\n"+
			"  `version` VARCHAR(255) NOT NULL,\n"+
			"  `device` VARCHAR(255) NOT NULL,\n"+
			"  `browser_version` VARCHAR(255),\n"+
			"  `parse_ms` DECIMAL(10,3),\n"+
			"  `exec_ms` DECIMAL(10,3),\n"+
			"  PRIMARY KEY (`id`)\n"+
			")", schema, ExecutionLatencyTable),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s`.`%s` (\n"+
			"  `id` INT NOT NULL AUTO_INCREMENT,\n"+
			"  `test_run` BIGINT NOT NULL,\n"+
			"  `sdk` VARCHAR(255) NOT NULL,\n"+
			"  `version` VARCHAR(255) NOT NULL,\n"+
			"  `size_byte` INT,\n"+
			"  PRIMARY KEY (`id`)\n"+
			")", schema, BinarySizeTable),
	}
}

func CreateTablesIfAbsent(ctx context.Context, db *sql.DB, schema string) error {
	for _, statement := range tableDefinitions(schema) {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return errors.Wrap(err, "could not create tables")
		}
	}
	return nil
}
