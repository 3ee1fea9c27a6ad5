package api

import (
	"bytes"        // CSV buffer
	"encoding/csv" // CSV export
	"net/http"     // HTTP status codes
	"time"         // Date parsing

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Exact money amounts
	"gorm.io/gorm"                  // GORM ORM library

	"github.com/hmid0478/scan2eat/internal/domain" // Importing domain models
)

// reportRange reads the start/end query params, defaulting to the
// current month.
func reportRange(c *gin.Context, loc *time.Location) (start, end string, ok bool) {
	now := time.Now().In(loc)
	start = c.DefaultQuery("start_date", time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc).Format(dateLayout))
	end = c.DefaultQuery("end_date", now.Format(dateLayout))
	for _, d := range []string{start, end} {
		if _, err := time.ParseInLocation(dateLayout, d, loc); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
			return "", "", false
		}
	}
	return start, end, true
}

type reportRow struct {
	Date     time.Time       `json:"date"`
	MealType string          `json:"meal_type"`
	Count    int64           `json:"count"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// ReportsHandler summarizes attendance and revenue per (date, meal type)
// over a date range.
func ReportsHandler(db *gorm.DB, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		start, end, ok := reportRange(c, loc)
		if !ok {
			return
		}
		rows, err := db.Model(&domain.Attendance{}).
			Select("meals.date, meals.meal_type, COUNT(attendances.id), COALESCE(SUM(attendances.amount_paid), 0)").
			Joins("JOIN meals ON meals.id = attendances.meal_id").
			Where("meals.date >= ? AND meals.date <= ?", start, end).
			Group("meals.date, meals.meal_type").
			Order("meals.date desc").Rows()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build report"})
			return
		}
		defer rows.Close()

		report := []reportRow{}
		totalRevenue := decimal.Zero
		var totalAttendance int64
		for rows.Next() {
			var r reportRow
			if err := rows.Scan(&r.Date, &r.MealType, &r.Count, &r.Revenue); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build report"})
				return
			}
			report = append(report, r)
			totalRevenue = totalRevenue.Add(r.Revenue)
			totalAttendance += r.Count
		}
		c.JSON(http.StatusOK, gin.H{
			"report":           report,
			"total_revenue":    totalRevenue,
			"total_attendance": totalAttendance,
			"start_date":       start,
			"end_date":         end,
		})
	}
}

// ExportReportHandler streams the per-scan attendance report for a date
// range as a CSV download.
func ExportReportHandler(db *gorm.DB, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		start, end, ok := reportRange(c, loc)
		if !ok {
			return
		}
		var attendances []domain.Attendance
		if err := db.Preload("User").Preload("Meal").
			Joins("JOIN meals ON meals.id = attendances.meal_id").
			Where("meals.date >= ? AND meals.date <= ?", start, end).
			Order("meals.date desc, attendances.scanned_at").
			Find(&attendances).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build report"})
			return
		}

		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"Date", "Meal Type", "Student Name", "Roll Number", "Amount", "Scan Time"})
		for _, a := range attendances {
			_ = w.Write([]string{
				a.Meal.Date.Format(dateLayout),
				a.Meal.MealType,
				a.User.Name,
				a.User.Username,
				a.AmountPaid.StringFixed(2),
				a.ScannedAt.In(loc).Format("15:04:05"),
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write CSV"})
			return
		}
		c.Header("Content-Disposition", "attachment; filename=report_"+start+"_to_"+end+".csv")
		c.Data(http.StatusOK, "text/csv", buf.Bytes())
	}
}
