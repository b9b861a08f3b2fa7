package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/vendo/internal/srm/entity"
	"github.com/bitfantasy/vendo/internal/srm/scoring"
	"github.com/minio/minio-go/v7"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// 供应商评估历史导出
// 每行得分从持久化的评级经注册表重新推导，而不是直接抄存储里的派生列，
// 保证报表与计分公式永远一致
// =============================================================================

const sheetName = "Evaluations"

// BuildSupplierWorkbook 生成某供应商的评估历史工作簿
func BuildSupplierWorkbook(supplier *entity.Supplier, evals []entity.SupplierEvaluation, registry *scoring.Registry) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	headers := []string{
		"Evaluation Date", "Model Epoch", "Evaluator",
		"Quality", "Availability", "Timeliness", "Price",
		"Field Safety", "Score %", "Tier", "Status", "Price Amount", "Observations",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}

	// 供应商信息放到工作簿属性里，表头保持纯数据
	title := fmt.Sprintf("%s (%s)", supplier.Name, supplier.Code)
	if err := f.SetDocProps(&excelize.DocProperties{Title: title, Subject: "supplier performance evaluations"}); err != nil {
		return nil, err
	}

	for row, eval := range evals {
		model := registry.ModelForDate(eval.EvaluationDate)

		// 从评级重算，而不是读存储的派生列
		var scoreCell interface{}
		tier := ""
		status := ""
		if percent := scoring.ComputeScore(model, eval.Ratings()); percent != nil {
			scoreCell = *percent
			t := scoring.ApplyFieldSafety(scoring.Classify(*percent), eval.FieldLevel())
			tier = string(t)
			status = t.Status()
		}

		fieldSafety := ""
		if eval.FieldSafetyApplied {
			fieldSafety = eval.FieldSafetyRating
		}

		values := []interface{}{
			eval.EvaluationDate.Format("2006-01-02"),
			model.Epoch,
			eval.EvaluatorID,
			eval.QualityRating,
			eval.AvailabilityRating,
			eval.TimelinessRating,
			eval.PriceRating,
			fieldSafety,
			scoreCell,
			tier,
			status,
			eval.PriceAmount,
			eval.Observations,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}

	return f, nil
}

// Uploader 导出文件上传器，未配置对象存储时为nil
type Uploader struct {
	client *minio.Client
	bucket string
}

func NewUploader(client *minio.Client, bucket string) *Uploader {
	return &Uploader{client: client, bucket: bucket}
}

// Upload 上传工作簿并返回限时下载链接
func (u *Uploader) Upload(ctx context.Context, supplierCode string, f *excelize.File) (string, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return "", fmt.Errorf("写出工作簿失败: %w", err)
	}

	objectName := fmt.Sprintf("exports/evaluations/%s-%s.xlsx", supplierCode, time.Now().Format("20060102-150405"))
	_, err := u.client.PutObject(ctx, u.bucket, objectName, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	})
	if err != nil {
		return "", fmt.Errorf("上传导出文件失败: %w", err)
	}

	url, err := u.client.PresignedGetObject(ctx, u.bucket, objectName, 24*time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("生成下载链接失败: %w", err)
	}
	return url.String(), nil
}
